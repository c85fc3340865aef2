package fixtures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/okian/pitchrank/pkg/logger"
)

// ErrInvalidConfig is returned for configurations that cannot generate a list.
var ErrInvalidConfig = errors.New("invalid fixture config")

// Teams below this many games are left unranked when pending teams are drawn.
const pendingGamesMax = 4

var (
	places   = []string{"riverside", "lakeside", "northside", "harbor city", "pine valley", "eastgate", "cedar park", "westfield", "granite falls", "bayview", "summit", "oak ridge"}
	suffixes = []string{"united", "soccer club", "athletic", "rovers", "academy", "city", "futbol club", "wanderers"}
	colors   = []string{"blue", "white", "red", "black", "gold", "green", "navy", "elite", "premier", "select"}
	states   = []string{"CA", "OR", "WA", "TX", "AZ", "NV", "CO", "UT", "NY", "NJ", "FL", "GA"}
)

// teamNamespace scopes generated team ids.
var teamNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("pitchrank/fixtures"))

// Generate builds a list for every configured cohort. Each cohort draws
// from its own source derived from the seed, so the output does not
// depend on scheduling.
func Generate(ctx context.Context, cfg Config) (Rankings, error) {
	if len(cfg.Cohorts) == 0 || cfg.TeamsPerCohort < 1 || cfg.PendingRatio < 0 || cfg.PendingRatio > 1 {
		return nil, fmt.Errorf("%w: need cohorts, teams >= 1 and pending ratio in [0,1]", ErrInvalidConfig)
	}
	logger.Get().Info(ctx, "generating rankings",
		logger.Int("cohorts", len(cfg.Cohorts)),
		logger.Int("teamsPerCohort", cfg.TeamsPerCohort),
	)

	out := make(Rankings, len(cfg.Cohorts))
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	for _, c := range cfg.Cohorts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("context cancelled during generation: %w", err)
				}
				mu.Unlock()
				return
			}
			teams := generateCohort(cfg, c.Key, c.AgeGroup, c.Gender)
			mu.Lock()
			out[c.Key] = teams
			mu.Unlock()
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func generateCohort(cfg Config, key, ageGroup, gender string) []Team {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	rng := rand.New(rand.NewPCG(cfg.Seed, h.Sum64()))
	title := cases.Title(language.English)

	birthYear := ""
	if age, err := strconv.Atoi(strings.TrimPrefix(ageGroup, "u")); err == nil && cfg.Season > 0 {
		birthYear = strconv.Itoa(cfg.Season - age)
	}

	teams := make([]Team, cfg.TeamsPerCohort)
	for i := range teams {
		place := places[rng.IntN(len(places))]
		club := title.String(place + " " + suffixes[rng.IntN(len(suffixes))])
		parts := []string{club}
		if birthYear != "" {
			parts = append(parts, birthYear)
		}
		parts = append(parts, title.String(colors[rng.IntN(len(colors))]))

		teams[i] = Team{
			TeamID:      uuid.NewSHA1(teamNamespace, []byte(fmt.Sprintf("%d/%s/%d", cfg.Seed, key, i))).String(),
			TeamName:    strings.Join(parts, " "),
			ClubName:    club,
			State:       states[rng.IntN(len(states))],
			AgeGroup:    strings.ToUpper(ageGroup),
			Gender:      gender,
			PowerScore:  round(40+rng.Float64()*60, 2),
			SOS:         round(0.2+rng.Float64()*0.7, 3),
			GamesPlayed: 5 + rng.IntN(30),
		}
	}

	pending := int(math.Round(float64(len(teams)) * cfg.PendingRatio))
	for _, i := range rng.Perm(len(teams))[:pending] {
		teams[i].GamesPlayed = rng.IntN(pendingGamesMax + 1)
		teams[i].PowerScore = round(teams[i].PowerScore/2, 2)
	}

	// Ranked teams are numbered by power score; the source publishes them
	// in that order with pending teams last.
	sort.SliceStable(teams, func(a, b int) bool {
		pa, pb := teams[a].GamesPlayed <= pendingGamesMax, teams[b].GamesPlayed <= pendingGamesMax
		if pa != pb {
			return pb
		}
		return teams[a].PowerScore > teams[b].PowerScore
	})
	rank := 0
	for i := range teams {
		if teams[i].GamesPlayed <= pendingGamesMax {
			continue
		}
		rank++
		r := rank
		teams[i].RankInCohort = &r
	}
	return teams
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Write encodes r as an indented JSON object keyed by cohort.
func Write(w io.Writer, r Rankings) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode rankings: %w", err)
	}
	return nil
}

// WriteFile writes r to path, replacing it atomically so a watcher never
// sees a partial file.
func WriteFile(path string, r Rankings) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".rankings-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if err := Write(tmp, r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
