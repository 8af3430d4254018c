package form

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"epiconsole/internal/api"
	"epiconsole/internal/entity"
	"epiconsole/internal/flow"
)

type fakeStore[E entity.Record, P any] struct {
	createErr error
	created   []E
	patches   map[entity.ID]P
	assign    func(E) E
}

func (f *fakeStore[E, P]) Create(_ context.Context, draft E) (E, error) {
	if f.createErr != nil {
		var zero E
		return zero, f.createErr
	}
	f.created = append(f.created, draft)
	if f.assign != nil {
		return f.assign(draft), nil
	}
	return draft, nil
}

func (f *fakeStore[E, P]) Update(_ context.Context, id entity.ID, patch P) (E, error) {
	if f.patches == nil {
		f.patches = map[entity.ID]P{}
	}
	f.patches[id] = patch
	var zero E
	return zero, nil
}

func newSimulationForm(store *fakeStore[entity.Simulation, entity.SimulationPatch], flags *flow.State) *Controller[entity.Simulation, entity.SimulationPatch] {
	return New(entity.SimulationSchema(""), Store[entity.Simulation, entity.SimulationPatch](store), flags, nil)
}

func TestMapfileNormalizedOnSet(t *testing.T) {
	c := newSimulationForm(&fakeStore[entity.Simulation, entity.SimulationPatch]{}, flow.New())
	if err := Set(c, entity.SimulationMapfile, `C:\fakepath\map.png`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := c.Draft().Mapfile; got != "data/mapfiles/map.png" {
		t.Fatalf("mapfile = %q", got)
	}
	if err := c.SetText("mapfile", "data/mapfiles/other.png"); err != nil {
		t.Fatalf("set text: %v", err)
	}
	if got := c.Draft().Mapfile; got != "data/mapfiles/other.png" {
		t.Fatalf("canonical path changed to %q", got)
	}
	if c.Phase() != PhaseEditing {
		t.Fatalf("phase = %v", c.Phase())
	}
}

func TestSelectionReplacesPriorSelection(t *testing.T) {
	c := newSimulationForm(&fakeStore[entity.Simulation, entity.SimulationPatch]{}, flow.New())
	opts := []entity.Option{{ID: 2, Selected: true}, {ID: 3}, {ID: 5, Selected: true}, {ID: 7, Selected: true}}
	if err := Select(c, entity.SimulationTerrain, opts); err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := c.Draft().TerrainIDs(); !reflect.DeepEqual(got, []entity.ID{2, 5, 7}) {
		t.Fatalf("selection = %v", got)
	}
	opts = []entity.Option{{ID: 2}, {ID: 3, Selected: true}, {ID: 5}, {ID: 7}}
	if err := Select(c, entity.SimulationTerrain, opts); err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := c.Draft().TerrainIDs(); !reflect.DeepEqual(got, []entity.ID{3}) {
		t.Fatalf("selection = %v, want [3]", got)
	}
}

func TestSubmitFailureKeepsDraftAndDialog(t *testing.T) {
	verr := &api.ValidationError{Status: 400, Fields: map[string][]string{"value": {"terrain with this value already exists."}}}
	store := &fakeStore[entity.Terrain, entity.TerrainPatch]{createErr: verr}
	flags := flow.New()
	c := New(entity.TerrainSchema(), Store[entity.Terrain, entity.TerrainPatch](store), flags, nil)
	c.Open()
	_ = Set(c, entity.TerrainName, "WATER")
	_ = c.SetText("value", "#0000ff")
	_ = c.SetText("access_level", "3")
	before := c.Draft()

	_, err := c.Submit(context.Background())
	if !errors.Is(err, verr) {
		t.Fatalf("error not surfaced verbatim: %v", err)
	}
	if after := c.Draft(); !reflect.DeepEqual(after, before) {
		t.Fatalf("draft changed: %+v -> %+v", before, after)
	}
	if !flags.IsOpen(flow.Terrain) {
		t.Fatalf("dialog closed after failed submit")
	}
	if c.Phase() != PhaseEditing || c.Err() != verr {
		t.Fatalf("phase=%v err=%v", c.Phase(), c.Err())
	}
}

func TestSubmitSuccessClosesThenResets(t *testing.T) {
	store := &fakeStore[entity.Terrain, entity.TerrainPatch]{assign: func(tr entity.Terrain) entity.Terrain {
		tr.ID = 11
		return tr
	}}
	flags := flow.New()
	c := New(entity.TerrainSchema(), Store[entity.Terrain, entity.TerrainPatch](store), flags, nil)

	var draftAtClose entity.Terrain
	flags.OnClose(flow.Terrain, func() { draftAtClose = c.Draft() })

	c.Open()
	_ = Set(c, entity.TerrainName, "GRASS")
	saved, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if saved.ID != 11 {
		t.Fatalf("saved id = %d", saved.ID)
	}
	if draftAtClose.Name != "GRASS" {
		t.Fatalf("dialog should close before the draft resets, saw %+v", draftAtClose)
	}
	if flags.IsOpen(flow.Terrain) {
		t.Fatalf("dialog still open")
	}
	if c.Draft() != entity.TerrainSchema().Default() || c.Phase() != PhaseEmpty {
		t.Fatalf("draft not reset: %+v (%v)", c.Draft(), c.Phase())
	}
}

func TestSimulationSuccessLeavesTerrainDialog(t *testing.T) {
	flags := flow.New()
	c := newSimulationForm(&fakeStore[entity.Simulation, entity.SimulationPatch]{}, flags)
	c.Open()
	flags.RequestOpen(flow.Terrain)
	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if flags.IsOpen(flow.Simulation) || !flags.IsOpen(flow.Terrain) {
		t.Fatalf("unexpected flags %v", flags.Snapshot())
	}
}

func TestEditSubmitsFullPatch(t *testing.T) {
	store := &fakeStore[entity.Virus, entity.VirusPatch]{}
	c := New(entity.VirusSchema(), Store[entity.Virus, entity.VirusPatch](store), nil, nil)
	if err := c.Edit(entity.Virus{ID: 4, Name: "flu", AttackRate: 0.1}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if id, ok := c.Editing(); !ok || id != 4 {
		t.Fatalf("editing = %v, %v", id, ok)
	}
	_ = Set(c, entity.VirusFatalityRate, 0.2)
	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	p, ok := store.patches[4]
	if !ok || p.Name == nil || *p.Name != "flu" || p.FatalityRate == nil || *p.FatalityRate != 0.2 {
		t.Fatalf("patch = %+v", p)
	}
	if _, ok := c.Editing(); ok {
		t.Fatalf("editing should reset after success")
	}
}

func TestSetTextRejectsBadInput(t *testing.T) {
	c := New(entity.VirusSchema(), Store[entity.Virus, entity.VirusPatch](&fakeStore[entity.Virus, entity.VirusPatch]{}), nil, nil)
	before := c.Draft()
	if err := c.SetText("attack_rate", "high"); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := c.SetText("nope", "1"); err == nil {
		t.Fatalf("expected unknown field error")
	}
	if c.Draft() != before || c.Phase() != PhaseEmpty {
		t.Fatalf("draft changed on bad input")
	}
}

func TestCancelResetsDraft(t *testing.T) {
	flags := flow.New()
	c := newSimulationForm(&fakeStore[entity.Simulation, entity.SimulationPatch]{}, flags)
	c.Open()
	_ = Set(c, entity.SimulationName, "sim-a")
	c.Cancel()
	if flags.IsOpen(flow.Simulation) {
		t.Fatalf("dialog still open")
	}
	if c.Draft().Name != "" || c.Phase() != PhaseEmpty {
		t.Fatalf("draft not discarded: %+v", c.Draft())
	}
}

type blockingStore struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) Create(ctx context.Context, d entity.Virus) (entity.Virus, error) {
	close(b.entered)
	<-b.release
	return d, nil
}

func (b *blockingStore) Update(context.Context, entity.ID, entity.VirusPatch) (entity.Virus, error) {
	return entity.Virus{}, nil
}

type failingStore struct {
	entered chan struct{}
	release chan struct{}
}

func (f *failingStore) Create(context.Context, entity.Terrain) (entity.Terrain, error) {
	close(f.entered)
	<-f.release
	return entity.Terrain{}, &api.ValidationError{Status: 400, Fields: map[string][]string{"value": {"taken"}}}
}

func (f *failingStore) Update(context.Context, entity.ID, entity.TerrainPatch) (entity.Terrain, error) {
	return entity.Terrain{}, nil
}

func TestCancelDuringSubmitDiscardsDraftOnFailure(t *testing.T) {
	flags := flow.New()
	fs := &failingStore{entered: make(chan struct{}), release: make(chan struct{})}
	c := New(entity.TerrainSchema(), Store[entity.Terrain, entity.TerrainPatch](fs), flags, nil)
	c.Open()
	if err := c.SetText("name", "WATER"); err != nil {
		t.Fatalf("set: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()
	<-fs.entered
	c.Cancel()
	if flags.IsOpen(flow.Terrain) {
		t.Fatalf("dialog still open after cancel")
	}
	close(fs.release)
	if err := <-done; err == nil {
		t.Fatalf("expected submit error")
	}
	if c.Phase() != PhaseEmpty || c.Draft().Name != "" || c.Err() != nil {
		t.Fatalf("draft kept after cancel: phase=%v draft=%+v err=%v", c.Phase(), c.Draft(), c.Err())
	}
	c.Open()
	if c.Draft().Name != "" || c.Err() != nil {
		t.Fatalf("reopened dialog shows stale draft %+v / %v", c.Draft(), c.Err())
	}
}

func TestEditsRejectedWhileSubmitting(t *testing.T) {
	bs := &blockingStore{entered: make(chan struct{}), release: make(chan struct{})}
	c := New(entity.VirusSchema(), Store[entity.Virus, entity.VirusPatch](bs), nil, nil)
	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()
	<-bs.entered
	if c.Phase() != PhaseSubmitting {
		t.Fatalf("phase = %v", c.Phase())
	}
	if err := Set(c, entity.VirusName, "x"); !errors.Is(err, ErrSubmitting) {
		t.Fatalf("edit during submit: %v", err)
	}
	if _, err := c.Submit(context.Background()); !errors.Is(err, ErrSubmitting) {
		t.Fatalf("second submit: %v", err)
	}
	close(bs.release)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
}
