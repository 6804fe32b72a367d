// Package hook implements the Hook Entry Point: the sole synchronous path
// from the event source to disk. Grounded on the teacher's
// cmd/tarsy/main.go flag/env bootstrap shape and the
// pkg/queue/worker.go#claimNextSession claim-then-commit transactional
// idiom, adapted here from "claim a session" to "ingest one event".
package hook

import (
	"encoding/json"
	"fmt"

	"github.com/dennisonbertram/contextvault/pkg/models"
)

// MaxEventBytes bounds the size of one event payload the hook will accept.
// Larger payloads are rejected without being parsed.
const MaxEventBytes = 1 << 20 // 1 MiB

// Event is the tagged envelope read from the event source. Unknown fields
// are preserved in Extra but never logged, per SPEC_FULL.md §6's
// "dynamic-typed event payloads" guidance.
type Event struct {
	Type       string          `json:"type"`
	SessionKey string          `json:"session_key"`
	Role       models.Role     `json:"role"`
	Content    string          `json:"content"`
	Timestamp  string          `json:"timestamp,omitempty"`
	Extra      map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON captures every field not named above into Extra, so the
// hook can round-trip forward-compatible event shapes without losing or
// logging data it does not understand.
func (e *Event) UnmarshalJSON(data []byte) error {
	type alias Event
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = Event(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := map[string]bool{"type": true, "session_key": true, "role": true, "content": true, "timestamp": true}
	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if !known[k] {
			extra[k] = v
		}
	}
	e.Extra = extra
	return nil
}

// Validate checks that the minimum fields the public contract requires are
// present.
func (e *Event) Validate() error {
	if e.SessionKey == "" {
		return fmt.Errorf("session_key is required")
	}
	if e.Role != models.RoleUser && e.Role != models.RoleAssistant {
		return fmt.Errorf("role must be %q or %q", models.RoleUser, models.RoleAssistant)
	}
	return nil
}
