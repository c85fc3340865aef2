package model

import (
	"fmt"
	"strings"
)

// Field identifies a sortable column of a ranking list.
type Field string

// Sortable fields.
const (
	FieldRank         Field = "rank"
	FieldScore        Field = "score"
	FieldName         Field = "name"
	FieldClub         Field = "club"
	FieldRegion       Field = "region"
	FieldStrength     Field = "strength"
	FieldStrengthRank Field = "strength_rank"
	FieldGames        Field = "games"
)

// Fields lists the sortable fields in display order.
var Fields = []Field{FieldRank, FieldName, FieldClub, FieldRegion, FieldScore, FieldStrength, FieldStrengthRank, FieldGames}

// Kind groups fields by how they compare.
type Kind int

const (
	KindRank  Kind = iota + 1 // lower is better, may be null
	KindScore                 // higher is better
	KindString
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Kind returns the comparison kind of f.
func (f Field) Kind() Kind {
	switch f {
	case FieldRank, FieldStrengthRank:
		return KindRank
	case FieldScore, FieldStrength, FieldGames:
		return KindScore
	case FieldName, FieldClub, FieldRegion:
		return KindString
	}
	return 0
}

// Valid reports whether f is a known field.
func (f Field) Valid() bool { return f.Kind() != 0 }

// NaturalDirection is the direction a field sorts in when first selected.
func (f Field) NaturalDirection() Direction {
	if f.Kind() == KindScore {
		return Desc
	}
	return Asc
}

// ParseField parses a field name.
func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: unknown sort field %q", ErrPrecondition, s)
	}
	return f, nil
}

// ParseDirection parses a direction; empty input yields "".
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Asc, Desc, "":
		return d, nil
	}
	return "", fmt.Errorf("%w: unknown sort direction %q", ErrPrecondition, s)
}

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d == Desc {
		return Asc
	}
	return Desc
}

// SortSpec is the active sort of a ranking list.
type SortSpec struct {
	Field     Field
	Direction Direction
}

// DefaultSort is cohort rank, best first.
func DefaultSort() SortSpec { return SortSpec{Field: FieldRank, Direction: Asc} }

// Select returns the spec after the user picks field: the same field
// toggles direction, a different one starts at its natural direction.
func (s SortSpec) Select(field Field) SortSpec {
	if field == s.Field {
		return SortSpec{Field: field, Direction: s.Direction.Flip()}
	}
	return SortSpec{Field: field, Direction: field.NaturalDirection()}
}

// Validate checks the spec and fills an empty direction with the natural one.
func (s SortSpec) Validate() (SortSpec, error) {
	if !s.Field.Valid() {
		return s, fmt.Errorf("%w: unknown sort field %q", ErrPrecondition, s.Field)
	}
	switch s.Direction {
	case Asc, Desc:
	case "":
		s.Direction = s.Field.NaturalDirection()
	default:
		return s, fmt.Errorf("%w: unknown sort direction %q", ErrPrecondition, s.Direction)
	}
	return s, nil
}
