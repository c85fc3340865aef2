// Package fixtures generates deterministic synthetic ranking lists in the
// upstream wire shape.
package fixtures

import (
	"github.com/okian/pitchrank/internal/domain/model"
)

// Config holds configuration for a generated rankings file.
type Config struct {
	Cohorts        []model.Cohort // cohorts to generate, keyed in the output
	TeamsPerCohort int            // teams in each cohort
	PendingRatio   float64        // share of teams without a cohort rank
	Season         int            // birth years are Season minus the age
	Seed           uint64         // same seed, same output
}

// DefaultConfig returns a small two-cohort configuration.
func DefaultConfig() Config {
	return Config{
		Cohorts:        []model.Cohort{{Key: "u12-boys", AgeGroup: "u12", Gender: "boys"}, {Key: "u12-girls", AgeGroup: "u12", Gender: "girls"}},
		TeamsPerCohort: 200,
		PendingRatio:   0.05,
		Season:         2025,
		Seed:           1,
	}
}

// Team is one entry of a generated list, encoded as the upstream source
// publishes it.
type Team struct {
	TeamID       string  `json:"team_id"`
	TeamName     string  `json:"team_name"`
	ClubName     string  `json:"club_name"`
	State        string  `json:"state"`
	AgeGroup     string  `json:"age_group"`
	Gender       string  `json:"gender"`
	PowerScore   float64 `json:"power_score"`
	RankInCohort *int    `json:"rank_in_cohort"`
	SOS          float64 `json:"sos"`
	GamesPlayed  int     `json:"games_played"`
}

// Rankings maps cohort keys to their lists.
type Rankings map[string][]Team
