package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"epiconsole/internal/entity"
)

// ErrNotFound matches every NotFoundError via errors.Is.
var ErrNotFound = errors.New("not found")

// TransportError reports a request that never reached the store, never came
// back, or came back in a form the client cannot use.
type TransportError struct {
	Op     string
	URL    string
	Status int // zero when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: store answered %d: %v", e.Op, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError reports a payload the store rejected.
type ValidationError struct {
	Status int
	Fields map[string][]string
	Detail string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields)+1)
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], ", ")))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("validation failed (%d)", e.Status)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field returns the messages recorded for one field.
func (e *ValidationError) Field(name string) []string { return e.Fields[name] }

// NotFoundError reports an operation on an id the store does not know.
type NotFoundError struct {
	Collection string
	ID         entity.ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: not found", e.Collection, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// parseValidation reads a DRF-style error body: either {"field": ["msg"]},
// {"field": "msg"} or {"detail": "msg"}. Anything else becomes the detail.
func parseValidation(status int, body []byte) *ValidationError {
	verr := &ValidationError{Status: status, Fields: map[string][]string{}}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		verr.Detail = strings.TrimSpace(string(body))
		return verr
	}
	for key, val := range raw {
		msgs := decodeMessages(val)
		if key == "detail" || key == "non_field_errors" {
			verr.Detail = strings.Join(append(splitDetail(verr.Detail), msgs...), "; ")
			continue
		}
		verr.Fields[key] = msgs
	}
	return verr
}

func splitDetail(d string) []string {
	if d == "" {
		return nil
	}
	return []string{d}
}

func decodeMessages(val json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(val, &list); err == nil {
		return list
	}
	var one string
	if err := json.Unmarshal(val, &one); err == nil {
		return []string{one}
	}
	var nested map[string]json.RawMessage
	if err := json.Unmarshal(val, &nested); err == nil {
		var out []string
		for k, v := range nested {
			for _, m := range decodeMessages(v) {
				out = append(out, k+": "+m)
			}
		}
		sort.Strings(out)
		return out
	}
	return []string{strings.TrimSpace(string(val))}
}

// Outcome classifies err for metrics and logs.
func Outcome(err error) string {
	var (
		verr *ValidationError
		terr *TransportError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &verr):
		return "validation"
	case errors.As(err, &terr):
		return "transport"
	default:
		return "error"
	}
}
