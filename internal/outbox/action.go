package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/offsync/internal/route"
)

// MaxRetries is the number of failed replays after which an action leaves
// the queue for the dead-letter ledger.
const MaxRetries = 5

// ErrInvalidAction wraps every SyncActionInput validation failure.
var ErrInvalidAction = errors.New("invalid sync action")

var validate = validator.New()

// SyncActionInput is the caller-supplied part of a sync action.
type SyncActionInput struct {
	Type   route.ActionType `json:"type" validate:"required,oneof=create update delete"`
	Entity route.Entity     `json:"entity" validate:"required,oneof=product category order sale customer supplier expense stock_movement generic"`

	// Endpoint and Method override table routing when both are set.
	Endpoint string `json:"endpoint,omitempty" validate:"omitempty,startswith=/"`
	Method   string `json:"method,omitempty" validate:"omitempty,oneof=POST PUT PATCH DELETE"`

	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate checks field constraints plus the cross-field rules the struct
// tags can't express.
func (in *SyncActionInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	if (in.Endpoint == "") != (in.Method == "") {
		return fmt.Errorf("%w: endpoint and method must be set together", ErrInvalidAction)
	}
	if in.Entity == route.EntityGeneric && in.Endpoint == "" {
		return fmt.Errorf("%w: generic actions need an explicit endpoint", ErrInvalidAction)
	}
	if len(in.Payload) > 0 && !json.Valid(in.Payload) {
		return fmt.Errorf("%w: payload is not valid JSON", ErrInvalidAction)
	}
	return nil
}

// SyncAction is a queued write awaiting replay.
type SyncAction struct {
	ID         string           `json:"id"`
	Type       route.ActionType `json:"type"`
	Entity     route.Entity     `json:"entity"`
	Endpoint   string           `json:"endpoint,omitempty"`
	Method     string           `json:"method,omitempty"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
	Retries    int              `json:"retries"`
	LastError  string           `json:"last_error,omitempty"`
}

// HasOverride reports whether the action carries its own endpoint/method
// and bypasses the routing table.
func (a SyncAction) HasOverride() bool {
	return a.Endpoint != "" && a.Method != ""
}

// Call resolves the HTTP call used to replay the action.
func (a SyncAction) Call(table *route.Table) (route.Call, error) {
	if a.HasOverride() {
		return route.Call{Method: strings.ToUpper(a.Method), Path: a.Endpoint}, nil
	}
	return table.Resolve(a.Entity, a.Type, a.Payload)
}

// clone returns a copy that shares no mutable memory with a.
func (a SyncAction) clone() SyncAction {
	if a.Payload != nil {
		a.Payload = append(json.RawMessage(nil), a.Payload...)
	}
	return a
}
