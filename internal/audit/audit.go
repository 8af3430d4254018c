// Package audit records successful mutations of the entity store.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Action is the kind of mutation.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Event describes one committed mutation.
type Event struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"ts"`
	Collection string    `json:"collection"`
	Action     Action    `json:"action"`
	RecordID   int64     `json:"record_id"`
	Name       string    `json:"name,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(collection string, action Action, recordID int64, name, requestID string) Event {
	return Event{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Collection: collection,
		Action:     action,
		RecordID:   recordID,
		Name:       name,
		RequestID:  requestID,
	}
}

// Writer persists audit events.
type Writer interface {
	Write(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Write(context.Context, Event) error { return nil }

// MultiWriter fans events out to several writers. Every writer sees every
// event; errors are joined.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a MultiWriter over ws, skipping nil entries.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Write sends ev to all writers.
func (mw *MultiWriter) Write(ctx context.Context, ev Event) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Write(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of wrapped writers.
func (mw *MultiWriter) Len() int { return len(mw.writers) }
