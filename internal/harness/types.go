package harness

// Trace event kinds.
const (
	KindOp    = "op"    // a wallet API call made by a step
	KindPush  = "push"  // a delivered message
	KindStep  = "step"  // an engine step with an effect
	KindChain = "chain" // a chain-level step
)

// TraceEvent is one entry of a scenario trace. Which fields are set
// depends on Kind.
type TraceEvent struct {
	Kind      string  `json:"kind"`
	Actor     string  `json:"actor,omitempty"`
	Op        string  `json:"op,omitempty"`
	From      string  `json:"from,omitempty"`
	Action    string  `json:"action,omitempty"`
	Objective string  `json:"objective,omitempty"`
	Status    string  `json:"status,omitempty"`
	Turn      *uint64 `json:"turn,omitempty"`
	Held      string  `json:"held,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains the events in the order they happened.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Steps returns the engine step events.
func (r *Result) Steps() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Kind == KindStep {
			out = append(out, ev)
		}
	}
	return out
}

func turnPtr(t uint64) *uint64 {
	return &t
}
