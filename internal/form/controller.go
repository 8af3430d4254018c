// Package form holds the transient draft behind one creation or edit dialog.
//
// A draft moves through Empty -> Editing -> Submitting and back to Empty on
// success or to Editing (with the error attached) on failure. Field edits
// are typed; the entity schema's normalizer runs after every edit.
package form

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"epiconsole/internal/entity"
	"epiconsole/internal/flow"
	"epiconsole/internal/logging"
)

// ErrSubmitting is returned for edits or submits while a submit is in flight.
var ErrSubmitting = errors.New("submission in progress")

// Phase is the draft lifecycle state.
type Phase int

const (
	PhaseEmpty Phase = iota
	PhaseEditing
	PhaseSubmitting
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhaseEditing:
		return "editing"
	case PhaseSubmitting:
		return "submitting"
	}
	return "unknown"
}

// Store is the part of the entity client a form submits through.
type Store[E entity.Record, P any] interface {
	Create(ctx context.Context, draft E) (E, error)
	Update(ctx context.Context, id entity.ID, patch P) (E, error)
}

// Controller owns one draft of type E.
type Controller[E entity.Record, P any] struct {
	schema entity.Schema[E, P]
	store  Store[E, P]
	flags  *flow.State
	dialog flow.Dialog
	log    *slog.Logger

	mu      sync.Mutex
	draft   E
	editing entity.ID
	phase   Phase
	err     error

	// cancelled marks a Cancel that arrived while a submit was in flight.
	cancelled bool
}

// New returns a controller seeded from the schema default. flags may be nil
// for forms that are not shown as dialogs (e.g. the CLI).
func New[E entity.Record, P any](schema entity.Schema[E, P], store Store[E, P], flags *flow.State, log *slog.Logger) *Controller[E, P] {
	if log == nil {
		log = logging.Discard()
	}
	return &Controller[E, P]{
		schema: schema,
		store:  store,
		flags:  flags,
		dialog: flow.DialogFor(schema.Kind),
		log:    log.With("form", string(schema.Kind)),
		draft:  schema.Default(),
	}
}

// Schema returns the entity schema the form edits.
func (c *Controller[E, P]) Schema() entity.Schema[E, P] { return c.schema }

// Dialog returns the dialog flag this form closes on success.
func (c *Controller[E, P]) Dialog() flow.Dialog { return c.dialog }

// Draft returns the current draft.
func (c *Controller[E, P]) Draft() E {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Phase returns the lifecycle phase.
func (c *Controller[E, P]) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Err returns the error of the last failed submit, if any.
func (c *Controller[E, P]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Editing returns the id of the record being edited, if the form edits one.
func (c *Controller[E, P]) Editing() (entity.ID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editing, c.editing != 0
}

// FieldText returns the display text of a named field of the draft.
func (c *Controller[E, P]) FieldText(name string) string {
	f, ok := c.schema.Field(name)
	if !ok {
		return ""
	}
	return f.Text(c.Draft())
}

// Open shows the form's dialog for a new record.
func (c *Controller[E, P]) Open() {
	if c.flags != nil {
		c.flags.RequestOpen(c.dialog)
	}
}

// Edit loads an existing record into the draft; Submit then updates it.
func (c *Controller[E, P]) Edit(rec E) error {
	c.mu.Lock()
	if c.phase == PhaseSubmitting {
		c.mu.Unlock()
		return ErrSubmitting
	}
	c.draft = rec
	c.editing = rec.RecordID()
	c.phase = PhaseEditing
	c.err = nil
	c.mu.Unlock()
	c.Open()
	return nil
}

// Cancel closes the dialog and discards the draft.
func (c *Controller[E, P]) Cancel() {
	if c.flags != nil {
		c.flags.RequestClose(c.dialog)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseSubmitting {
		// the in-flight submit discards the draft when it returns
		c.cancelled = true
		return
	}
	c.reset()
}

// SetText parses text for the named field. A parse failure leaves the draft
// unchanged.
func (c *Controller[E, P]) SetText(name, text string) error {
	f, ok := c.schema.Field(name)
	if !ok {
		return &entity.FieldError{Field: name, Input: text, Err: errors.New("unknown field")}
	}
	return c.update(name, func(d E) (E, error) { return f.WithText(d, text) })
}

// Set replaces one typed field of the draft.
func Set[E entity.Record, P any, V any](c *Controller[E, P], f entity.Field[E, V], v V) error {
	return c.update(f.Name(), func(d E) (E, error) { return f.With(d, v), nil })
}

// Select replaces a multi-selection field with the ids of the selected
// options, in option order. Prior selections are discarded, not merged.
func Select[E entity.Record, P any](c *Controller[E, P], f entity.Field[E, []entity.ID], options []entity.Option) error {
	ids := make([]entity.ID, 0, len(options))
	for _, o := range options {
		if o.Selected {
			ids = append(ids, o.ID)
		}
	}
	return Set(c, f, ids)
}

// Submit creates the draft, or updates the edited record with every field.
// On success the dialog is closed and then the draft reset to the default.
// On failure the draft and the dialog flag are left as they were and err is
// returned unchanged, unless Cancel was called meanwhile, in which case the
// draft is discarded.
func (c *Controller[E, P]) Submit(ctx context.Context) (E, error) {
	c.mu.Lock()
	if c.phase == PhaseSubmitting {
		c.mu.Unlock()
		var zero E
		return zero, ErrSubmitting
	}
	draft, editing := c.draft, c.editing
	c.phase = PhaseSubmitting
	c.cancelled = false
	c.mu.Unlock()

	var (
		saved E
		err   error
	)
	if editing != 0 {
		saved, err = c.store.Update(ctx, editing, c.schema.Patch(draft))
	} else {
		saved, err = c.store.Create(ctx, draft)
	}
	if err != nil {
		c.mu.Lock()
		if c.cancelled {
			c.reset()
		} else {
			c.phase = PhaseEditing
			c.err = err
		}
		c.mu.Unlock()
		c.log.Warn("submit failed", "editing", editing, "err", err)
		return saved, err
	}

	c.log.Info("submitted", "id", saved.RecordID(), "name", saved.RecordName())
	if c.flags != nil {
		c.flags.RequestClose(c.dialog)
	}
	c.mu.Lock()
	c.reset()
	c.mu.Unlock()
	return saved, nil
}

func (c *Controller[E, P]) update(field string, fn func(E) (E, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseSubmitting {
		return ErrSubmitting
	}
	d, err := fn(c.draft)
	if err != nil {
		return err
	}
	c.draft = c.schema.Apply(d, field)
	c.phase = PhaseEditing
	return nil
}

func (c *Controller[E, P]) reset() {
	c.draft = c.schema.Default()
	c.editing = 0
	c.phase = PhaseEmpty
	c.err = nil
	c.cancelled = false
}
