package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"epiconsole/internal/entity"
	"epiconsole/internal/store"
)

func newSet(t *testing.T, opts Options) (*Set, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(store.NewServer(store.Options{}).Handler())
	t.Cleanup(srv.Close)
	set, err := NewSet(srv.URL+"/api/v1", opts)
	if err != nil {
		t.Fatalf("new set: %v", err)
	}
	return set, srv
}

func TestCreateThenGetRoundTrips(t *testing.T) {
	set, _ := newSet(t, Options{})
	ctx := context.Background()

	draft := entity.TerrainSchema().Default()
	draft.Name, draft.Value, draft.Color, draft.AccessLevel = "WATER", "#0000ff", "#0000ff", 3
	created, err := set.Terrains.Create(ctx, draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("no id assigned")
	}
	got, err := set.Terrains.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	draft.ID = created.ID
	if !reflect.DeepEqual(got, draft) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, draft)
	}

	all, err := set.Terrains.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	matches := 0
	for _, tr := range all {
		if reflect.DeepEqual(tr, draft) {
			matches++
		}
	}
	if matches != 1 || len(all) != 1 {
		t.Fatalf("list = %+v, want exactly one %+v", all, draft)
	}
}

func TestDuplicateTerrainValueIsValidationError(t *testing.T) {
	set, _ := newSet(t, Options{})
	ctx := context.Background()
	first := entity.Terrain{Name: "WATER", Value: "#0000ff", Color: "#0000ff", Walkable: true}
	if _, err := set.Terrains.Create(ctx, first); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before, _ := set.Terrains.List(ctx)

	dup := first
	dup.Name = "LAKE"
	_, err := set.Terrains.Create(ctx, dup)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %T %v", err, err)
	}
	if len(verr.Field("value")) == 0 || verr.Status != http.StatusBadRequest {
		t.Fatalf("unexpected error body: %+v", verr)
	}
	after, _ := set.Terrains.List(ctx)
	if len(after) != len(before) {
		t.Fatalf("collection changed: %d -> %d", len(before), len(after))
	}
}

func TestPartialUpdateLeavesOtherFields(t *testing.T) {
	set, _ := newSet(t, Options{})
	ctx := context.Background()
	tr, err := set.Terrains.Create(ctx, entity.Terrain{Name: "SAND", Value: "#ffff00", Color: "#ffff00", Walkable: true, AccessLevel: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	level := 2
	updated, err := set.Terrains.Update(ctx, tr.ID, entity.TerrainPatch{AccessLevel: &level})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	want := tr
	want.AccessLevel = 2
	if !reflect.DeepEqual(updated, want) {
		t.Fatalf("update changed other fields:\n got %+v\nwant %+v", updated, want)
	}
}

func TestNotFoundAndDelete(t *testing.T) {
	set, _ := newSet(t, Options{})
	ctx := context.Background()
	v, err := set.Viruses.Create(ctx, entity.VirusSchema().Default())
	if err == nil {
		t.Fatalf("blank name should be rejected, got %+v", v)
	}
	draft := entity.VirusSchema().Default()
	draft.Name = "flu"
	v, err = set.Viruses.Create(ctx, draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := set.Viruses.Delete(ctx, v.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = set.Viruses.Get(ctx, v.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("get deleted = %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Collection != "viruses" || nf.ID != v.ID {
		t.Fatalf("not found detail = %+v", nf)
	}
}

func TestSimulationTerrainDecodesExpandedObjects(t *testing.T) {
	set, _ := newSet(t, Options{})
	ctx := context.Background()
	tr, err := set.Terrains.Create(ctx, entity.Terrain{Name: "WATER", Value: "#0000ff", Color: "#0000ff"})
	if err != nil {
		t.Fatalf("terrain: %v", err)
	}
	draft := entity.SimulationSchema("").Default()
	draft.Name, draft.Mapfile = "sim-a", "data/mapfiles/map.png"
	draft.Terrain = entity.RefsOf([]entity.ID{tr.ID})
	sim, err := set.Simulations.Create(ctx, draft)
	if err != nil {
		t.Fatalf("simulation: %v", err)
	}
	if len(sim.Terrain) != 1 || sim.Terrain[0].Terrain == nil || sim.Terrain[0].Terrain.Name != "WATER" {
		t.Fatalf("terrain refs = %+v", sim.Terrain)
	}
	none := []entity.ID{}
	sim, err = set.Simulations.Update(ctx, sim.ID, entity.SimulationPatch{Terrain: &none})
	if err != nil || len(sim.Terrain) != 0 {
		t.Fatalf("clear terrain: %+v %v", sim.Terrain, err)
	}
}

func TestCreateRejectsDraftWithID(t *testing.T) {
	set, _ := newSet(t, Options{})
	if _, err := set.Viruses.Create(context.Background(), entity.Virus{ID: 3, Name: "x"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing request id")
		}
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c, err := NewClient[entity.Virus, entity.VirusPatch](srv.URL, entity.KindVirus, Options{Metrics: m})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.List(context.Background())
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Status != http.StatusBadGateway {
		t.Fatalf("5xx = %v", err)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("viruses", "list", "transport")); got != 1 {
		t.Fatalf("transport counter = %v", got)
	}

	srv.Close()
	_, err = c.List(context.Background())
	if !errors.As(err, &terr) || terr.Status != 0 {
		t.Fatalf("closed server = %v", err)
	}
}

func TestUndecodableResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()
	c, _ := NewClient[entity.Terrain, entity.TerrainPatch](srv.URL, entity.KindTerrain, Options{})
	_, err := c.List(context.Background())
	var terr *TransportError
	if !errors.As(err, &terr) || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("err = %v", err)
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)
	c, _ := NewClient[entity.Terrain, entity.TerrainPatch](srv.URL, entity.KindTerrain, Options{Timeout: 50 * time.Millisecond})
	_, err := c.List(context.Background())
	var terr *TransportError
	if !errors.As(err, &terr) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, u := range []string{"ftp://x", "::", "localhost:8000"} {
		if _, err := NewClient[entity.Terrain, entity.TerrainPatch](u, entity.KindTerrain, Options{}); err == nil {
			t.Errorf("%q accepted", u)
		}
	}
}

func TestParseValidationShapes(t *testing.T) {
	cases := []struct {
		body   string
		field  string
		msgs   []string
		detail string
	}{
		{`{"value":["taken"]}`, "value", []string{"taken"}, ""},
		{`{"mapfile":"must have filetype"}`, "mapfile", []string{"must have filetype"}, ""},
		{`{"detail":"bad"}`, "", nil, "bad"},
		{`not json`, "", nil, "not json"},
		{`{"terrain":{"value":["x"]}}`, "terrain", []string{"value: x"}, ""},
	}
	for _, c := range cases {
		v := parseValidation(400, []byte(c.body))
		if c.field != "" && !reflect.DeepEqual(v.Field(c.field), c.msgs) {
			t.Errorf("%s: field = %v", c.body, v.Field(c.field))
		}
		if v.Detail != c.detail {
			t.Errorf("%s: detail = %q", c.body, v.Detail)
		}
	}
}
