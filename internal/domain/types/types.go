// Package types contains the response shapes shared by the service and
// its consumers.
package types

import (
	"time"

	"github.com/okian/pitchrank/internal/domain/model"
	"github.com/okian/pitchrank/internal/domain/sorting"
	"github.com/okian/pitchrank/internal/domain/window"
)

// Team is a searchable team identity.
type Team struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Club   string `json:"club,omitempty"`
	Region string `json:"region,omitempty"`
}

// Row is one line of a sorted ranking list.
type Row struct {
	Position     int     `json:"position"`
	Team         Team    `json:"team"`
	Rank         *int    `json:"rank"` // null while pending
	Score        float64 `json:"score"`
	Strength     float64 `json:"strength"`
	StrengthRank int     `json:"strength_rank"`
	GamesPlayed  int     `json:"games_played"`
}

// Window describes which rows a page materializes and the padding that
// stands in for the rest.
type Window struct {
	Lo           int     `json:"lo"`
	Hi           int     `json:"hi"`
	PadTop       float64 `json:"pad_top"`
	PadBottom    float64 `json:"pad_bottom"`
	TotalHeight  float64 `json:"total_height"`
	ScrollOffset float64 `json:"scroll_offset"`
}

// Page is a windowed slice of a sorted cohort list.
type Page struct {
	Cohort  string `json:"cohort"`
	Sort    string `json:"sort"`
	Dir     string `json:"dir"`
	Total   int    `json:"total"`
	Window  Window `json:"window"`
	Rows    []Row  `json:"rows"`
	Focused int    `json:"focused"` // index of the located row, -1 if none
}

// CohortStatus reports the loading state of a cohort.
type CohortStatus struct {
	Key         string    `json:"key"`
	AgeGroup    string    `json:"age_group"`
	Gender      string    `json:"gender"`
	State       string    `json:"state"`
	Records     int       `json:"records"`
	Attempts    int       `json:"attempts"`
	Version     uint64    `json:"version,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	LoadedAt    time.Time `json:"loaded_at,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// TeamFrom converts an entity.
func TeamFrom(e model.Entity) Team {
	return Team{ID: e.ID, Name: e.DisplayName, Club: e.GroupName, Region: e.Region}
}

// TeamsFrom converts entities, preserving order.
func TeamsFrom(entities []model.Entity) []Team {
	out := make([]Team, len(entities))
	for i, e := range entities {
		out[i] = TeamFrom(e)
	}
	return out
}

// RowFrom converts a sorted row.
func RowFrom(r *sorting.Row) Row {
	return Row{
		Position:     r.Position,
		Team:         TeamFrom(r.Record.Entity),
		Rank:         r.Record.CohortRank,
		Score:        r.Record.PrimaryScore,
		Strength:     r.Record.SecondaryMetric,
		StrengthRank: r.StrengthRank,
		GamesPlayed:  r.Record.GamesPlayed,
	}
}

// WindowFrom converts a computed range.
func WindowFrom(r window.Range) Window {
	return Window{
		Lo:           r.Lo,
		Hi:           r.Hi,
		PadTop:       r.PadTop,
		PadBottom:    r.PadBottom,
		TotalHeight:  r.TotalHeight,
		ScrollOffset: r.ScrollOffset,
	}
}
