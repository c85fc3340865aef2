// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
)

// Entity is the searchable identity of a team.
type Entity struct {
	ID          string // stable identifier
	DisplayName string // team name, e.g. "Riverside FC 2012 Blue"
	GroupName   string // club or organization
	Region      string // state or region code
}

// RankedRecord is one row of a cohort ranking list.
// CohortRank is nil while the team's rank is pending.
type RankedRecord struct {
	Entity

	AgeGroup        string
	Gender          string
	PrimaryScore    float64
	CohortRank      *int
	SecondaryMetric float64
	StrengthRank    *int // precomputed rank by SecondaryMetric, if the source provides one
	GamesPlayed     int
}

// Entities projects records onto their identities, preserving order.
func Entities(records []RankedRecord) []Entity {
	out := make([]Entity, len(records))
	for i := range records {
		out[i] = records[i].Entity
	}
	return out
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// Cohort describes the visible population of a ranking list.
type Cohort struct {
	Key      string
	AgeGroup string
	Gender   string
	MinGames int
}

// ParseCohort parses keys like "u12-boys" into a Cohort.
func ParseCohort(key string) (Cohort, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	age, gender, ok := strings.Cut(key, "-")
	if !ok || age == "" || gender == "" {
		return Cohort{}, fmt.Errorf("%w: cohort key %q must look like u12-boys", ErrPrecondition, key)
	}
	return Cohort{Key: key, AgeGroup: age, Gender: gender}, nil
}

// Includes reports whether r belongs to the visible population.
// Empty cohort attributes match everything.
func (c Cohort) Includes(r *RankedRecord) bool {
	if c.AgeGroup != "" && r.AgeGroup != "" && !strings.EqualFold(c.AgeGroup, r.AgeGroup) {
		return false
	}
	if c.Gender != "" && r.Gender != "" && !strings.EqualFold(c.Gender, r.Gender) {
		return false
	}
	return r.GamesPlayed >= c.MinGames
}
