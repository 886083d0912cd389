package harness

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/offsync/internal/engine"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Online is the initial connectivity.
	Online bool `yaml:"online"`

	// MaxRetries overrides the retry budget when positive.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// Resources are the critical prefetch resources.
	Resources []engine.Resource `yaml:"resources,omitempty"`

	// Gateway scripts the server's replies per call.
	Gateway []Script `yaml:"gateway,omitempty"`

	// Setup steps run before the flow and must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the main sequence of steps with optional expectations.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Script lists the replies for one "METHOD path". The last reply repeats.
type Script struct {
	Call    string  `yaml:"call"`
	Replies []Reply `yaml:"replies"`
}

// Reply is one scripted server reply.
type Reply struct {
	// Body is the JSON response for a success.
	Body string `yaml:"body,omitempty"`
	// Status of 300 or more is a rejection with Message.
	Status  int    `yaml:"status,omitempty"`
	Message string `yaml:"message,omitempty"`
	// NetworkDown fails the call as unreachable.
	NetworkDown bool `yaml:"network_down,omitempty"`
}

// Step kinds.
const (
	StepCall     = "call"
	StepEnqueue  = "enqueue"
	StepOnline   = "online"
	StepOffline  = "offline"
	StepSync     = "sync"
	StepPrefetch = "prefetch"
	StepAdvance  = "advance"
	StepRetry    = "retry"
	StepRetryAll = "retry_all"
	StepDismiss  = "dismiss"
	StepRestart  = "restart"
)

// Step is one action in a setup or flow.
type Step struct {
	Do string `yaml:"do"`

	// Method and Path are used by call.
	Method string `yaml:"method,omitempty"`
	Path   string `yaml:"path,omitempty"`

	// Body is the request body for call and the payload for enqueue.
	Body any `yaml:"body,omitempty"`

	// Entity and Type are used by enqueue.
	Entity string `yaml:"entity,omitempty"`
	Type   string `yaml:"type,omitempty"`

	// ID names the dead letter for retry and dismiss.
	ID string `yaml:"id,omitempty"`

	// Duration is parsed with time.ParseDuration for advance.
	Duration string `yaml:"duration,omitempty"`

	// Times repeats a sync; the expectation applies to the last drain.
	Times int `yaml:"times,omitempty"`

	// Expect validates the step. If nil the step must not fail.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies a step's expected outcome.
type ExpectClause struct {
	// Error, when set, must be a substring of the step's error.
	Error string `yaml:"error,omitempty"`

	// Result is a subset match against the step's JSON-shaped output.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Action is "METHOD path" (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args is a subset match on the request body (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Table is status, queue, deadletter or cache (final_state).
	Table string `yaml:"table,omitempty"`

	// Where filters rows by subset match (final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect is a subset match on the single matching row (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of requests (trace_count) or matching
	// rows (final_state).
	Count *int `yaml:"count,omitempty"`

	// Actions is the expected request order (trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// State tables for final_state.
const (
	TableStatus     = "status"
	TableQueue      = "queue"
	TableDeadLetter = "deadletter"
	TableCache      = "cache"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, sc := range s.Gateway {
		if _, _, err := splitCall(sc.Call); err != nil {
			return fmt.Errorf("gateway[%d]: %w", i, err)
		}
		if len(sc.Replies) == 0 {
			return fmt.Errorf("gateway[%d]: replies list is required", i)
		}
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Do {
	case "":
		return fmt.Errorf("do is required")
	case StepCall:
		if step.Method == "" || step.Path == "" {
			return fmt.Errorf("call needs method and path")
		}
	case StepEnqueue:
		if step.Entity == "" || step.Type == "" {
			return fmt.Errorf("enqueue needs entity and type")
		}
	case StepRetry, StepDismiss:
		if step.ID == "" {
			return fmt.Errorf("%s needs id", step.Do)
		}
	case StepAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("advance: duration must be positive")
		}
	case StepSync:
		if step.Times < 0 {
			return fmt.Errorf("sync: times must be non-negative")
		}
	case StepOnline, StepOffline, StepPrefetch, StepRetryAll, StepRestart:
	default:
		return fmt.Errorf("unknown step %q", step.Do)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		switch a.Table {
		case TableStatus, TableQueue, TableDeadLetter, TableCache:
		case "":
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		default:
			return fmt.Errorf("assertions[%d]: unknown table %q", index, a.Table)
		}
		if len(a.Expect) == 0 && a.Count == nil {
			return fmt.Errorf("assertions[%d]: expect or count is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// splitCall parses "METHOD /path".
func splitCall(call string) (method, path string, err error) {
	method, path, ok := strings.Cut(strings.TrimSpace(call), " ")
	path = strings.TrimSpace(path)
	if !ok || !strings.HasPrefix(path, "/") {
		return "", "", fmt.Errorf("call %q must be \"METHOD /path\"", call)
	}
	method = strings.ToUpper(method)
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return "", "", fmt.Errorf("call %q: unsupported method", call)
	}
	return method, path, nil
}
