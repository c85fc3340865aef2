package tui

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/okian/pitchrank/internal/domain/model"
)

const ellipsis = "…"

// Truncate shortens s to at most width cells.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, ellipsis)
}

// Pad truncates s to width cells and fills the rest with spaces. Right
// alignment pads on the left.
func Pad(s string, width int, right bool) string {
	s = Truncate(s, width)
	if right {
		return runewidth.FillLeft(s, width)
	}
	return runewidth.FillRight(s, width)
}

// Wrap breaks s into at most maxLines lines of width cells, on spaces where
// possible. Text that does not fit ends in an ellipsis.
func Wrap(s string, width, maxLines int) []string {
	if width <= 0 || maxLines <= 0 {
		return nil
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	line := ""
	for i := 0; i < len(words); i++ {
		candidate := words[i]
		if line != "" {
			candidate = line + " " + words[i]
		}
		if runewidth.StringWidth(candidate) <= width {
			line = candidate
			continue
		}
		if len(lines) == maxLines-1 {
			rest := strings.Join(append([]string{candidate}, words[i+1:]...), " ")
			return append(lines, Truncate(rest, width))
		}
		if line == "" {
			lines = append(lines, Truncate(words[i], width))
			continue
		}
		lines = append(lines, line)
		line = ""
		i-- // retry the word on a fresh line
	}
	if line != "" || len(lines) == 0 {
		lines = append(lines, line)
	}
	return lines
}

// column is one table column.
type column struct {
	title string
	field model.Field // empty for the position column
	width int
	right bool
}

// Fixed column widths; name and club share what is left.
const (
	posWidth      = 5
	rankWidth     = 5
	regionWidth   = 6
	scoreWidth    = 7
	strengthWidth = 6
	sosRankWidth  = 7
	gamesWidth    = 5
	minNameWidth  = 12
	gap           = 1
)

// layoutColumns fits the table to total cells.
func layoutColumns(total int) []column {
	cols := []column{
		{title: "#", width: posWidth, right: true},
		{title: "Rank", field: model.FieldRank, width: rankWidth, right: true},
		{title: "Team", field: model.FieldName},
		{title: "Club", field: model.FieldClub},
		{title: "St", field: model.FieldRegion, width: regionWidth},
		{title: "Score", field: model.FieldScore, width: scoreWidth, right: true},
		{title: "SOS", field: model.FieldStrength, width: strengthWidth, right: true},
		{title: "SOS#", field: model.FieldStrengthRank, width: sosRankWidth, right: true},
		{title: "GP", field: model.FieldGames, width: gamesWidth, right: true},
	}
	fixed := gap * (len(cols) - 1)
	for _, c := range cols {
		fixed += c.width
	}
	flex := max(total-fixed, 2*minNameWidth)
	cols[2].width = flex * 3 / 5
	cols[3].width = flex - cols[2].width
	return cols
}

// formatRank renders a cohort rank; pending ranks show a dash.
func formatRank(rank *int) string {
	if rank == nil {
		return "—"
	}
	return strconv.Itoa(*rank)
}

// sortLabel describes the active sort for the title bar.
func sortLabel(spec model.SortSpec) string {
	arrow := "↑"
	if spec.Direction == model.Desc {
		arrow = "↓"
	}
	return string(spec.Field) + " " + arrow
}

// nextField returns the field after f in display order, wrapping around.
// step -1 walks backwards.
func nextField(f model.Field, step int) model.Field {
	n := len(model.Fields)
	for i, candidate := range model.Fields {
		if candidate == f {
			return model.Fields[((i+step)%n+n)%n]
		}
	}
	return model.Fields[0]
}
