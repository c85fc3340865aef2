package source

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"

	"github.com/okian/pitchrank/internal/domain/model"
)

// Upstream payloads have drifted over time; each field lists the names it
// has been published under, preferred first.
var (
	idFields       = []string{"team_id", "id", "teamId"}
	nameFields     = []string{"team_name", "name", "teamName"}
	clubFields     = []string{"club_name", "club", "clubName"}
	regionFields   = []string{"state", "region", "state_code", "stateCode"}
	ageFields      = []string{"age_group", "ageGroup", "age"}
	genderFields   = []string{"gender", "sex"}
	scoreFields    = []string{"power_score", "powerScore", "score"}
	rankFields     = []string{"rank_in_cohort", "rankInCohort", "rank", "national_rank"}
	sosFields      = []string{"sos", "strength_of_schedule", "strengthOfSchedule"}
	sosRankFields  = []string{"sos_rank", "sosRank", "strength_rank"}
	gamesFields    = []string{"games_played", "gamesPlayed", "games"}
	envelopeFields = []string{"teams", "rankings", "data"}
)

// Normalize decodes a ranking list into records. It accepts a bare array
// or an object wrapping the array under "teams", "rankings" or "data".
// Entries without an id are skipped.
func Normalize(data []byte) ([]model.RankedRecord, error) {
	records, _, err := normalize(data)
	return records, err
}

// normalize also reports how many entries were skipped.
func normalize(data []byte) ([]model.RankedRecord, int, error) {
	if !gjson.ValidBytes(data) {
		return nil, 0, ErrMalformed
	}
	return normalizeResult(gjson.ParseBytes(data))
}

func normalizeResult(doc gjson.Result) ([]model.RankedRecord, int, error) {
	list := doc
	if doc.IsObject() {
		list = first(doc, envelopeFields)
	}
	if !list.IsArray() {
		return nil, 0, fmt.Errorf("%w: expected an array of teams", ErrMalformed)
	}

	items := list.Array()
	records := make([]model.RankedRecord, 0, len(items))
	dropped := 0
	for _, item := range items {
		r, ok := record(item)
		if !ok {
			dropped++
			continue
		}
		records = append(records, r)
	}
	return records, dropped, nil
}

func record(item gjson.Result) (model.RankedRecord, bool) {
	if !item.IsObject() {
		return model.RankedRecord{}, false
	}
	id := strings.TrimSpace(first(item, idFields).String())
	if id == "" {
		return model.RankedRecord{}, false
	}
	return model.RankedRecord{
		Entity: model.Entity{
			ID:          id,
			DisplayName: strings.TrimSpace(first(item, nameFields).String()),
			GroupName:   strings.TrimSpace(first(item, clubFields).String()),
			Region:      strings.TrimSpace(first(item, regionFields).String()),
		},
		AgeGroup:        AgeGroup(first(item, ageFields).String()),
		Gender:          Gender(first(item, genderFields).String()),
		PrimaryScore:    first(item, scoreFields).Float(),
		CohortRank:      optionalInt(first(item, rankFields)),
		SecondaryMetric: first(item, sosFields).Float(),
		StrengthRank:    optionalInt(first(item, sosRankFields)),
		GamesPlayed:     int(first(item, gamesFields).Int()),
	}, true
}

// first returns the first non-null value among names.
func first(obj gjson.Result, names []string) gjson.Result {
	for _, name := range names {
		if v := obj.Get(name); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// optionalInt maps missing, null, blank or non-positive ranks to nil.
func optionalInt(v gjson.Result) *int {
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	if v.Type == gjson.String && strings.TrimSpace(v.Str) == "" {
		return nil
	}
	n := int(v.Int())
	if n <= 0 {
		return nil
	}
	return &n
}

// AgeGroup canonicalizes "U12", "u-12" and "12" to "u12".
func AgeGroup(s string) string {
	s = strings.ToLower(strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s))
	if s != "" && strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		return "u" + s
	}
	return s
}

// Gender canonicalizes the spellings seen upstream to "boys" or "girls".
func Gender(s string) string {
	switch g := strings.ToLower(strings.TrimSpace(s)); g {
	case "m", "male", "boy", "boys":
		return "boys"
	case "f", "female", "girl", "girls":
		return "girls"
	default:
		return g
	}
}
