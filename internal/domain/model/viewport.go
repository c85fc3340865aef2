package model

// Viewport describes the scroll state of a windowed list in pixels
// (or terminal lines; the unit only has to be consistent).
type Viewport struct {
	ScrollOffset  float64
	VisibleHeight float64
	RowHeight     float64
	Overscan      int
}

// Query is a search input tagged with the generation it was issued at.
// Results computed for a query apply only while no newer generation exists.
type Query struct {
	Text       string
	Generation uint64
}

// Next returns the query for new input text, one generation later.
func (q Query) Next(text string) Query {
	return Query{Text: text, Generation: q.Generation + 1}
}

// Supersedes reports whether q was issued after older.
func (q Query) Supersedes(older Query) bool {
	return q.Generation > older.Generation
}
