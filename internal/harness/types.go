package harness

// Trace event types.
const (
	EventRequest  = "request"
	EventResponse = "response"
)

// Response outcomes recorded in the trace.
const (
	OutcomeOK           = "ok"
	OutcomeNetworkError = "network_error"
	OutcomeError        = "error"
)

// TraceEvent is one gateway request or response.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"` // "request" or "response"
	// Call is "METHOD path".
	Call string `json:"call"`
	// Body is the decoded request body, or the decoded response on success.
	Body    any    `json:"body,omitempty"`
	Outcome string `json:"outcome,omitempty"` // "ok", "network_error", "http_<code>" or "error"
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every gateway call in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// State is the final engine state keyed by table: status, queue,
	// deadletter and cache. Values are JSON-shaped.
	State map[string]any `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]any),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
