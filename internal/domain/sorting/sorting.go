// Package sorting orders a cohort's ranking list by a user-chosen column and
// derives ranks that the source data does not carry.
//
// Null cohort ranks always sort after every ranked team, in both
// directions. Strings compare case-insensitively with English collation.
package sorting

import (
	"cmp"
	"sort"

	"github.com/okian/pitchrank/internal/domain/model"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Row is a record placed in a sorted list.
type Row struct {
	Record model.RankedRecord

	// StrengthRank is the record's rank by SecondaryMetric within the
	// visible population. See StrengthRanks.
	StrengthRank int

	// Position is the 1-based place of the row in the sorted output.
	Position int
}

// Sort filters records to cohort's visible population and orders them by
// spec. The input slice is not modified.
func Sort(records []model.RankedRecord, spec model.SortSpec, cohort model.Cohort) ([]Row, error) {
	spec, err := spec.Validate()
	if err != nil {
		return nil, err
	}

	visible := make([]model.RankedRecord, 0, len(records))
	for i := range records {
		if cohort.Includes(&records[i]) {
			visible = append(visible, records[i])
		}
	}

	ranks := StrengthRanks(visible)
	rows := make([]Row, len(visible))
	for i := range visible {
		rows[i] = Row{Record: visible[i], StrengthRank: ranks[i]}
	}

	compare := comparator(spec)
	sort.SliceStable(rows, func(a, b int) bool { return compare(&rows[a], &rows[b]) < 0 })
	for i := range rows {
		rows[i].Position = i + 1
	}
	return rows, nil
}

// StrengthRanks returns the strength rank of each record in input order.
// Precomputed ranks are used only when every record carries one; a
// partial set is ignored and all ranks are derived with DenseRanks, so the
// result never repeats a rank.
func StrengthRanks(records []model.RankedRecord) []int {
	ranks := make([]int, len(records))
	for i := range records {
		sr := records[i].StrengthRank
		if sr == nil {
			return DenseRanks(records)
		}
		ranks[i] = *sr
	}
	return ranks
}

// DenseRanks ranks records by SecondaryMetric descending and returns the
// rank of each record in input order. Ranks are 1..len(records), each used
// exactly once; ties fall back to PrimaryScore descending, then ID.
func DenseRanks(records []model.RankedRecord) []int {
	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ra, rb := &records[order[a]], &records[order[b]]
		if c := cmp.Compare(rb.SecondaryMetric, ra.SecondaryMetric); c != 0 {
			return c < 0
		}
		if c := cmp.Compare(rb.PrimaryScore, ra.PrimaryScore); c != 0 {
			return c < 0
		}
		return ra.ID < rb.ID
	})
	ranks := make([]int, len(records))
	for rank, i := range order {
		ranks[i] = rank + 1
	}
	return ranks
}

func comparator(spec model.SortSpec) func(a, b *Row) int {
	sign := 1
	if spec.Direction == model.Desc {
		sign = -1
	}

	switch spec.Field {
	case model.FieldRank:
		return func(a, b *Row) int { return compareNullable(a.Record.CohortRank, b.Record.CohortRank, sign) }
	case model.FieldStrengthRank:
		return func(a, b *Row) int { return sign * cmp.Compare(a.StrengthRank, b.StrengthRank) }
	case model.FieldScore:
		return func(a, b *Row) int {
			if c := cmp.Compare(a.Record.PrimaryScore, b.Record.PrimaryScore); c != 0 {
				return sign * c
			}
			return cmp.Compare(b.Record.SecondaryMetric, a.Record.SecondaryMetric)
		}
	case model.FieldStrength:
		return func(a, b *Row) int { return sign * cmp.Compare(a.Record.SecondaryMetric, b.Record.SecondaryMetric) }
	case model.FieldGames:
		return func(a, b *Row) int { return sign * cmp.Compare(a.Record.GamesPlayed, b.Record.GamesPlayed) }
	}

	col := collate.New(language.English, collate.IgnoreCase)
	key := func(r *Row) string {
		switch spec.Field {
		case model.FieldClub:
			return r.Record.GroupName
		case model.FieldRegion:
			return r.Record.Region
		}
		return r.Record.DisplayName
	}
	return func(a, b *Row) int { return sign * col.CompareString(key(a), key(b)) }
}

// compareNullable orders present values by sign and puts nil after every
// present value whatever the direction.
func compareNullable(a, b *int, sign int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return sign * cmp.Compare(*a, *b)
}
