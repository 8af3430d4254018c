package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"epiconsole/internal/api"
	"epiconsole/internal/entity"
	"epiconsole/internal/logging"
)

// Result collects what an import did.
type Result struct {
	Terrain    []entity.Terrain
	Simulation entity.Simulation
	Virus      *entity.Virus
	Messages   []string
	Warnings   []string
}

// Summary renders the counts of created records.
func (r *Result) Summary() string {
	count := func(kind string) int {
		n := 0
		for _, m := range r.Messages {
			if strings.HasPrefix(m, "Created "+kind+"(") {
				n++
			}
		}
		return n
	}
	return fmt.Sprintf("Created %d new objects with %d warnings:\n  - Terrains: %d\n  - Simulations: %d\n  - Viruses: %d",
		len(r.Messages), len(r.Warnings), count("Terrain"), count("Simulation"), count("Virus"))
}

// Importer creates the entities of a scenario through the store clients.
type Importer struct {
	set     *api.Set
	existOK bool
	log     *slog.Logger
}

// NewImporter returns an importer. With existOK, records rejected because a
// record with the same name already exists are reused instead.
func NewImporter(set *api.Set, existOK bool, log *slog.Logger) *Importer {
	if log == nil {
		log = logging.Discard()
	}
	return &Importer{set: set, existOK: existOK, log: log}
}

// Import creates the terrain first, then the simulation referencing it, then
// the virus. It stops at the first error; records created so far stay.
func (im *Importer) Import(ctx context.Context, sc *Scenario) (*Result, error) {
	res := &Result{}
	ids := make([]entity.ID, 0, len(sc.Terrain))
	for _, t := range sc.Terrain {
		t.ID = 0
		saved, err := create(ctx, im, res, "Terrain", t, im.set.Terrains.Create, im.set.Terrains.List,
			func(have entity.Terrain) bool { return have.Name == t.Name || have.Value == t.Value })
		if err != nil {
			return res, err
		}
		res.Terrain = append(res.Terrain, saved)
		ids = append(ids, saved.ID)
	}

	sim := sc.Simulation
	sim.ID = 0
	sim.Terrain = entity.RefsOf(ids)
	saved, err := create(ctx, im, res, "Simulation", sim, im.set.Simulations.Create, im.set.Simulations.List,
		func(have entity.Simulation) bool { return have.Name == sim.Name })
	if err != nil {
		return res, err
	}
	res.Simulation = saved

	if sc.Virus != nil {
		v := *sc.Virus
		v.ID = 0
		saved, err := create(ctx, im, res, "Virus", v, im.set.Viruses.Create, im.set.Viruses.List,
			func(have entity.Virus) bool { return have.Name == v.Name })
		if err != nil {
			return res, err
		}
		res.Virus = &saved
	}
	return res, nil
}

func create[E entity.Record](
	ctx context.Context, im *Importer, res *Result, label string, rec E,
	createFn func(context.Context, E) (E, error),
	listFn func(context.Context) ([]E, error),
	same func(E) bool,
) (E, error) {
	saved, err := createFn(ctx, rec)
	if err == nil {
		res.Messages = append(res.Messages, fmt.Sprintf("Created %s(name=%s, id=%s)", label, saved.RecordName(), saved.RecordID()))
		im.log.Info("imported", "kind", label, "id", saved.RecordID(), "name", saved.RecordName())
		return saved, nil
	}
	if !im.existOK || !alreadyExists(err) {
		return saved, fmt.Errorf("%s %q: %w", strings.ToLower(label), rec.RecordName(), err)
	}
	all, lerr := listFn(ctx)
	if lerr != nil {
		return saved, errors.Join(err, lerr)
	}
	for _, have := range all {
		if same(have) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s(name=%s): %v", label, rec.RecordName(), err))
			im.log.Warn("reusing existing record", "kind", label, "id", have.RecordID(), "name", have.RecordName())
			return have, nil
		}
	}
	return saved, fmt.Errorf("%s %q: %w", strings.ToLower(label), rec.RecordName(), err)
}

// alreadyExists reports whether err is a uniqueness rejection.
func alreadyExists(err error) bool {
	var verr *api.ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	for _, msgs := range verr.Fields {
		for _, m := range msgs {
			if strings.Contains(m, "already exists") {
				return true
			}
		}
	}
	return false
}
