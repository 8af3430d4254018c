package console

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"epiconsole/internal/api"
	"epiconsole/internal/entity"
	"epiconsole/internal/flow"
	"epiconsole/internal/form"
	"epiconsole/internal/listview"
	"epiconsole/internal/logging"
)

// Session wires one console session: the shared dialog flags, one form per
// entity kind and the list views that follow them.
type Session struct {
	Flags   *flow.State
	Clients *api.Set

	Terrains    *listview.View[entity.Terrain]
	Viruses     *listview.View[entity.Virus]
	Simulations *listview.View[entity.Simulation]
	// TerrainOptions feeds the terrain selector of the simulation dialog.
	TerrainOptions *listview.View[entity.Terrain]

	TerrainForm    *form.Controller[entity.Terrain, entity.TerrainPatch]
	VirusForm      *form.Controller[entity.Virus, entity.VirusPatch]
	SimulationForm *form.Controller[entity.Simulation, entity.SimulationPatch]

	notify atomic.Pointer[func()]
}

// SessionOptions tunes NewSession.
type SessionOptions struct {
	AssetPrefix string
	Logger      *slog.Logger
	// Dispatch runs refreshes triggered by dialog closes; nil means async.
	Dispatch listview.Dispatch
}

// NewSession builds the session around the clients in set.
func NewSession(set *api.Set, opts SessionOptions) *Session {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	s := &Session{Flags: flow.New(), Clients: set}
	changed := func() {
		if fn := s.notify.Load(); fn != nil {
			(*fn)()
		}
	}

	s.Terrains = listview.New[entity.Terrain](set.Terrains, s.Flags, listview.Options[entity.Terrain]{
		Watch: []flow.Dialog{flow.Terrain}, Dispatch: opts.Dispatch, OnChange: changed,
		Logger: log.With("view", "terrains"),
	})
	s.Viruses = listview.New[entity.Virus](set.Viruses, s.Flags, listview.Options[entity.Virus]{
		Watch: []flow.Dialog{flow.Virus}, Dispatch: opts.Dispatch, OnChange: changed,
		Logger: log.With("view", "viruses"),
	})
	s.Simulations = listview.New[entity.Simulation](set.Simulations, s.Flags, listview.Options[entity.Simulation]{
		Watch: []flow.Dialog{flow.Simulation}, Dispatch: opts.Dispatch, OnChange: changed,
		Logger: log.With("view", "simulations"),
	})
	s.TerrainOptions = listview.New[entity.Terrain](set.Terrains, s.Flags, listview.Options[entity.Terrain]{
		Watch: []flow.Dialog{flow.Terrain}, Less: listview.ByName[entity.Terrain], Dispatch: opts.Dispatch,
		OnChange: changed, Logger: log.With("view", "terrain-options"),
	})

	s.TerrainForm = form.New(entity.TerrainSchema(), form.Store[entity.Terrain, entity.TerrainPatch](set.Terrains), s.Flags, log)
	s.VirusForm = form.New(entity.VirusSchema(), form.Store[entity.Virus, entity.VirusPatch](set.Viruses), s.Flags, log)
	s.SimulationForm = form.New(entity.SimulationSchema(opts.AssetPrefix), form.Store[entity.Simulation, entity.SimulationPatch](set.Simulations), s.Flags, log)
	return s
}

// SetNotifier registers fn to run after any view's rows change.
func (s *Session) SetNotifier(fn func()) { s.notify.Store(&fn) }

// Mount loads every view. A failed view keeps its error and does not stop
// the others.
func (s *Session) Mount(ctx context.Context) error {
	return errors.Join(
		s.Terrains.Mount(ctx),
		s.Viruses.Mount(ctx),
		s.Simulations.Mount(ctx),
		s.TerrainOptions.Mount(ctx),
	)
}

// Unmount detaches every view from the flags.
func (s *Session) Unmount() {
	s.Terrains.Unmount()
	s.Viruses.Unmount()
	s.Simulations.Unmount()
	s.TerrainOptions.Unmount()
}

// SelectTerrain toggles one terrain in the simulation draft's selection.
func (s *Session) SelectTerrain(id entity.ID) error {
	opts := s.TerrainOptions.Options(s.SimulationForm.Draft().TerrainIDs())
	for i := range opts {
		if opts[i].ID == id {
			opts[i].Selected = !opts[i].Selected
		}
	}
	return form.Select(s.SimulationForm, entity.SimulationTerrain, opts)
}
