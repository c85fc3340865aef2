package session

// State is the dropdown state of a search session.
type State int

const (
	Closed State = iota
	OpenEmpty
	OpenLoading
	OpenResults
	OpenNoResults
)

var stateNames = [...]string{"closed", "open_empty", "open_loading", "open_results", "open_no_results"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Open reports whether the dropdown is visible.
func (s State) Open() bool { return s != Closed }

// Key is a navigation key delivered to the controller.
type Key int

const (
	KeyArrowDown Key = iota + 1
	KeyArrowUp
	KeyEnter
	KeyEscape
)
