// Package listview keeps the displayed rows of one entity collection in step
// with the remote store.
//
// A View fetches once on Mount and again whenever one of its watched dialogs
// closes. Each fetch carries a sequence number and only the newest result is
// applied, so a slow early response can never overwrite a later one.
package listview

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"epiconsole/internal/entity"
	"epiconsole/internal/flow"
	"epiconsole/internal/logging"
)

// Lister is the part of the entity client a view reads through.
type Lister[E entity.Record] interface {
	List(ctx context.Context) ([]E, error)
}

// Dispatch runs a refresh triggered by a dialog transition.
type Dispatch func(func())

// Async runs each refresh on its own goroutine.
func Async(f func()) { go f() }

// Sync runs each refresh on the notifying goroutine.
func Sync(f func()) { f() }

// Options configures a View.
type Options[E entity.Record] struct {
	// Watch lists the dialogs whose close triggers a refresh.
	Watch []flow.Dialog
	// Less orders rows for display; nil keeps store order.
	Less func(a, b E) bool
	// Dispatch defaults to Async.
	Dispatch Dispatch
	// OnChange is called after rows or err change.
	OnChange func()
	Logger   *slog.Logger
}

// ByName orders records by name ignoring case, then id.
func ByName[E entity.Record](a, b E) bool {
	an, bn := strings.ToLower(a.RecordName()), strings.ToLower(b.RecordName())
	if an != bn {
		return an < bn
	}
	return a.RecordID() < b.RecordID()
}

// View holds the rows of one collection.
type View[E entity.Record] struct {
	src   Lister[E]
	flags *flow.State
	opts  Options[E]
	log   *slog.Logger

	mu      sync.Mutex
	rows    []E
	err     error
	seq     uint64
	applied uint64
	mounted bool
	ctx     context.Context
	cancels []func()
}

// New builds an unmounted view. flags may be nil when nothing is watched.
func New[E entity.Record](src Lister[E], flags *flow.State, opts Options[E]) *View[E] {
	if opts.Dispatch == nil {
		opts.Dispatch = Async
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &View[E]{src: src, flags: flags, opts: opts, log: log}
}

// Mount subscribes to the watched dialogs and performs the initial fetch.
// Mounting a mounted view is a no-op.
func (v *View[E]) Mount(ctx context.Context) error {
	v.mu.Lock()
	if v.mounted {
		v.mu.Unlock()
		return nil
	}
	v.mounted = true
	v.ctx = ctx
	v.mu.Unlock()

	if v.flags != nil {
		for _, d := range v.opts.Watch {
			cancel := v.flags.OnClose(d, func() {
				v.log.Debug("dialog closed, refreshing", "dialog", string(d))
				v.opts.Dispatch(func() { _ = v.Refresh(v.context()) })
			})
			v.mu.Lock()
			v.cancels = append(v.cancels, cancel)
			v.mu.Unlock()
		}
	}
	return v.Refresh(ctx)
}

// Unmount removes the subscriptions. Results of fetches still in flight are
// discarded.
func (v *View[E]) Unmount() {
	v.mu.Lock()
	cancels := v.cancels
	v.cancels = nil
	v.mounted = false
	v.seq++
	v.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

// Refresh lists the collection and applies the result if no newer refresh
// has started meanwhile. On failure rows are cleared and the error exposed.
func (v *View[E]) Refresh(ctx context.Context) error {
	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return nil
	}
	v.seq++
	seq := v.seq
	v.mu.Unlock()

	rows, err := v.src.List(ctx)
	if err == nil && v.opts.Less != nil {
		sort.SliceStable(rows, func(i, j int) bool { return v.opts.Less(rows[i], rows[j]) })
	}

	v.mu.Lock()
	if seq != v.seq {
		v.mu.Unlock()
		v.log.Debug("stale list result dropped", "seq", seq)
		return err
	}
	v.applied = seq
	if err != nil {
		v.rows, v.err = nil, err
	} else {
		v.rows, v.err = rows, nil
	}
	v.mu.Unlock()

	if err != nil {
		v.log.Warn("list failed", "err", err)
	}
	if v.opts.OnChange != nil {
		v.opts.OnChange()
	}
	return err
}

// Rows returns a copy of the current rows.
func (v *View[E]) Rows() []E {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]E, len(v.rows))
	copy(out, v.rows)
	return out
}

// Err returns the error of the last applied refresh.
func (v *View[E]) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Loaded reports whether any refresh result has been applied.
func (v *View[E]) Loaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.applied != 0
}

// Options returns the rows as selectable options, marking the given ids.
func (v *View[E]) Options(selected []entity.ID) []entity.Option {
	marked := make(map[entity.ID]bool, len(selected))
	for _, id := range selected {
		marked[id] = true
	}
	rows := v.Rows()
	out := make([]entity.Option, 0, len(rows))
	for _, r := range rows {
		out = append(out, entity.Option{ID: r.RecordID(), Label: r.RecordName(), Selected: marked[r.RecordID()]})
	}
	return out
}

func (v *View[E]) context() context.Context {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ctx == nil {
		return context.Background()
	}
	return v.ctx
}
