package spider

// State is the lifecycle phase of a run.
type State int32

const (
	// StateSeeded means the seed callback is queued and dispatch has not started.
	StateSeeded State = iota
	// StateRunning means callbacks are queued or being admitted.
	StateRunning
	// StateDraining means the queue is empty and only in-flight executions remain.
	// They may still discover work and move the run back to StateRunning.
	StateDraining
	// StateComplete means no callback is queued or executing and the item stream is closed.
	StateComplete
	// StateCanceled means the crawl context ended before the work was exhausted.
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateSeeded:
		return "seeded"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateComplete:
		return "complete"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the run has stopped for good.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateCanceled
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stats is a snapshot of run counters.
type Stats struct {
	Executed          int64 `json:"executed"`
	TransportFailures int64 `json:"transport_failures"`
	ItemSinkFailures  int64 `json:"item_sink_failures"`
	QueueSinkFailures int64 `json:"queue_sink_failures"`
	Items             int64 `json:"items"`
	Followed          int64 `json:"followed"`
	Queued            int   `json:"queued"`
	InFlight          int   `json:"in_flight"`
	Parked            int   `json:"parked"`
}

// Failed returns the number of failed executions.
func (s Stats) Failed() int64 {
	return s.TransportFailures + s.ItemSinkFailures + s.QueueSinkFailures
}
