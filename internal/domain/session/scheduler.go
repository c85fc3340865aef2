package session

// Priority orders deferred work.
type Priority int

const (
	// PriorityUserVisible is work whose result the user is waiting to see.
	PriorityUserVisible Priority = iota
	// PriorityBackground is work that may wait for idle time.
	PriorityBackground
)

func (p Priority) String() string {
	if p == PriorityBackground {
		return "background"
	}
	return "user_visible"
}

// Scheduler defers a task. Implementations may run tasks on other
// goroutines and in any order; the controller tolerates both.
type Scheduler interface {
	Schedule(task func(), p Priority)
}

// SyncScheduler runs every task immediately on the calling goroutine.
type SyncScheduler struct{}

// Schedule runs task.
func (SyncScheduler) Schedule(task func(), _ Priority) { task() }
