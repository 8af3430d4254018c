package scenario

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"epiconsole/internal/api"
	"epiconsole/internal/store"
)

func newSet(t *testing.T) *api.Set {
	t.Helper()
	srv := httptest.NewServer(store.NewServer(store.Options{}).Handler())
	t.Cleanup(srv.Close)
	set, err := api.NewSet(srv.URL+"/api/v1", api.Options{})
	if err != nil {
		t.Fatalf("new set: %v", err)
	}
	return set
}

func TestLoadScenario(t *testing.T) {
	sc, err := Load("testdata/outbreak.yaml")
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	if sc.Name != "outbreak" || sc.Simulation.MaxIter != 500 {
		t.Fatalf("unexpected scenario %+v", sc)
	}
	if sc.Simulation.XYScale != 10 || sc.Simulation.TStep != 1 {
		t.Fatalf("simulation defaults lost: %+v", sc.Simulation)
	}
	if len(sc.Terrain) != 2 {
		t.Fatalf("expected 2 terrain entries, got %d", len(sc.Terrain))
	}
	if sc.Terrain[0].Walkable || !sc.Terrain[1].Walkable || sc.Terrain[1].AccessLevel != 1 {
		t.Fatalf("terrain not decoded over defaults: %+v", sc.Terrain)
	}
	if sc.Virus == nil || sc.Virus.AttackRate != 0.2 || sc.Virus.InfectionRate != 0.021 {
		t.Fatalf("virus = %+v", sc.Virus)
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"no sim":         "scenario:\n  name: x\n",
		"terrain object": "scenario:\n  sim:\n    name: x\n    terrain: {name: WATER}\n",
		"bad type":       "scenario:\n  sim:\n    max_iter: many\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestImportCreatesEntities(t *testing.T) {
	set := newSet(t)
	sc, err := Load("testdata/outbreak.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	res, err := NewImporter(set, false, nil).Import(context.Background(), sc)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(res.Terrain) != 2 || res.Virus == nil || res.Simulation.ID == 0 {
		t.Fatalf("result = %+v", res)
	}
	got := res.Simulation.TerrainIDs()
	if len(got) != 2 || got[0] != res.Terrain[0].ID || got[1] != res.Terrain[1].ID {
		t.Fatalf("simulation terrain = %v", got)
	}
	if !strings.Contains(res.Summary(), "Created 4 new objects with 0 warnings") ||
		!strings.Contains(res.Summary(), "Terrains: 2") {
		t.Fatalf("summary = %q", res.Summary())
	}
}

func TestImportTwice(t *testing.T) {
	set := newSet(t)
	sc, err := Load("testdata/outbreak.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx := context.Background()
	first, err := NewImporter(set, true, nil).Import(ctx, sc)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}

	if _, err := NewImporter(set, false, nil).Import(ctx, sc); err == nil {
		t.Fatalf("second import without exist-ok succeeded")
	} else {
		var verr *api.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	}

	again, err := NewImporter(set, true, nil).Import(ctx, sc)
	if err != nil {
		t.Fatalf("import with exist-ok: %v", err)
	}
	if len(again.Messages) != 0 || len(again.Warnings) != 4 {
		t.Fatalf("messages=%v warnings=%v", again.Messages, again.Warnings)
	}
	if again.Simulation.ID != first.Simulation.ID || again.Terrain[1].ID != first.Terrain[1].ID {
		t.Fatalf("existing records not reused")
	}
	all, _ := set.Terrains.List(ctx)
	if len(all) != 2 {
		t.Fatalf("terrain count = %d", len(all))
	}
}
