package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"epiconsole/internal/audit"
	"epiconsole/internal/entity"
)

var (
	slugPattern = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)
	hexPattern  = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	mapfileExts = []string{".png", ".gif"}
)

// fieldErrors is the DRF-style body of a 400 response.
type fieldErrors map[string][]string

func (fe fieldErrors) add(field, msg string) { fe[field] = append(fe[field], msg) }

func (fe fieldErrors) empty() bool { return len(fe) == 0 }

// checker validates a merged document for one collection and returns the
// typed record ready for storage.
type checker struct {
	s    *Server
	errs fieldErrors
}

func (c *checker) requireSlug(field, v string) {
	switch {
	case strings.TrimSpace(v) == "":
		c.errs.add(field, "This field may not be blank.")
	case !slugPattern.MatchString(v):
		c.errs.add(field, "Enter a valid “slug” consisting of letters, numbers, underscores or hyphens.")
	case len(v) > 250:
		c.errs.add(field, "Ensure this field has no more than 250 characters.")
	}
}

func (c *checker) requireHex(field, v string) {
	if !hexPattern.MatchString(v) {
		c.errs.add(field, "invalid hex color: "+v)
	}
}

func (c *checker) atLeast(field string, v, min float64) {
	if v < min {
		c.errs.add(field, fmt.Sprintf("Ensure this value is greater than or equal to %v.", min))
	}
}

func (c *checker) rate(field string, v float64) {
	if math.IsNaN(v) || v < 0 || v > 1 {
		c.errs.add(field, "Ensure this value is between 0 and 1.")
	}
}

// unique fails when another record of collection carries the same value
// under key.
func (c *checker) unique(ctx context.Context, collection, key, value string, self entity.ID, label string) error {
	docs, err := c.s.backend.List(ctx, collection)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if d.ID == self {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(d.Payload, &m); err != nil {
			return err
		}
		if s, ok := m[key].(string); ok && s == value {
			c.errs.add(key, fmt.Sprintf("%s with this %s already exists.", label, key))
			return nil
		}
	}
	return nil
}

// decodeRecord converts a merged JSON document into E, reporting type
// mismatches per field.
func decodeRecord[E any](doc map[string]any) (E, fieldErrors) {
	var rec E
	data, err := json.Marshal(doc)
	if err != nil {
		return rec, fieldErrors{"non_field_errors": {err.Error()}}
	}
	err = json.Unmarshal(data, &rec)
	if err == nil {
		return rec, nil
	}
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		field := te.Field
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[:i]
		}
		if field == "" {
			field = "non_field_errors"
		}
		return rec, fieldErrors{field: {typeMessage(te.Type)}}
	}
	return rec, fieldErrors{"non_field_errors": {err.Error()}}
}

func typeMessage(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int, reflect.Int64:
		return "A valid integer is required."
	case reflect.Float64:
		return "A valid number is required."
	case reflect.Bool:
		return "Must be a valid boolean."
	case reflect.String:
		return "Not a valid string."
	case reflect.Slice:
		return "must be passed as array"
	}
	return "Invalid value."
}

func (s *Server) checkTerrain(ctx context.Context, id entity.ID, doc map[string]any) (entity.Terrain, fieldErrors, error) {
	t, errs := decodeRecord[entity.Terrain](doc)
	if errs != nil {
		return t, errs, nil
	}
	t.ID = id
	c := &checker{s: s, errs: fieldErrors{}}
	c.requireSlug("name", t.Name)
	c.requireHex("value", t.Value)
	c.requireHex("color", t.Color)
	if t.AccessLevel < 0 {
		c.errs.add("access_level", "Ensure this value is greater than or equal to 0.")
	}
	if c.errs["name"] == nil {
		if err := c.unique(ctx, entity.KindTerrain.Collection(), "name", t.Name, id, "terrain"); err != nil {
			return t, nil, err
		}
	}
	if c.errs["value"] == nil {
		if err := c.unique(ctx, entity.KindTerrain.Collection(), "value", t.Value, id, "terrain"); err != nil {
			return t, nil, err
		}
	}
	return t, c.errs, nil
}

func (s *Server) checkVirus(ctx context.Context, id entity.ID, doc map[string]any) (entity.Virus, fieldErrors, error) {
	v, errs := decodeRecord[entity.Virus](doc)
	if errs != nil {
		return v, errs, nil
	}
	v.ID = id
	c := &checker{s: s, errs: fieldErrors{}}
	c.requireSlug("name", v.Name)
	c.rate("attack_rate", v.AttackRate)
	c.rate("infection_rate", v.InfectionRate)
	c.rate("fatality_rate", v.FatalityRate)
	if c.errs["name"] == nil {
		if err := c.unique(ctx, entity.KindVirus.Collection(), "name", v.Name, id, "virus"); err != nil {
			return v, nil, err
		}
	}
	return v, c.errs, nil
}

// checkSimulation validates a simulation. Terrain entries given as objects
// are resolved by name, or created when no terrain of that name exists.
func (s *Server) checkSimulation(ctx context.Context, id entity.ID, doc map[string]any, requestID string) (entity.Simulation, fieldErrors, error) {
	refs, ferrs, err := s.resolveTerrain(ctx, doc["terrain"], requestID)
	if err != nil || ferrs != nil {
		return entity.Simulation{}, ferrs, err
	}
	doc["terrain"] = refs

	sim, errs := decodeRecord[entity.Simulation](doc)
	if errs != nil {
		return sim, errs, nil
	}
	sim.ID = id
	c := &checker{s: s, errs: fieldErrors{}}
	c.requireSlug("name", sim.Name)
	c.atLeast("xy_scale", sim.XYScale, 1)
	c.atLeast("t_step", float64(sim.TStep), 1)
	c.atLeast("max_iter", float64(sim.MaxIter), 1)
	c.atLeast("save_resolution", float64(sim.SaveResolution), 1)
	if err := s.checkMapfile(ctx, c, sim.Mapfile); err != nil {
		return sim, nil, err
	}
	if c.errs["name"] == nil {
		if err := c.unique(ctx, entity.KindSimulation.Collection(), "name", sim.Name, id, "simulation"); err != nil {
			return sim, nil, err
		}
	}
	return sim, c.errs, nil
}

func (s *Server) checkMapfile(ctx context.Context, c *checker, mapfile string) error {
	if strings.TrimSpace(mapfile) == "" {
		c.errs.add("mapfile", "This field may not be blank.")
		return nil
	}
	ok := false
	for _, ext := range mapfileExts {
		if strings.HasSuffix(strings.ToLower(mapfile), ext) {
			ok = true
		}
	}
	if !ok {
		c.errs.add("mapfile", "must have filetype in ('.png', '.gif')")
		return nil
	}
	exists, err := s.assets.Exists(ctx, mapfile)
	if err != nil {
		return fmt.Errorf("check asset %s: %w", mapfile, err)
	}
	if !exists {
		c.errs.add("mapfile", fmt.Sprintf("file `%s` does not exist", mapfile))
	}
	return nil
}

// resolveTerrain turns the raw terrain entries into bare ids.
func (s *Server) resolveTerrain(ctx context.Context, raw any, requestID string) ([]int64, fieldErrors, error) {
	if raw == nil {
		return []int64{}, nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fieldErrors{"terrain": {"must be passed as array"}}, nil
	}
	coll := entity.KindTerrain.Collection()
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case float64, string:
			id, err := entity.ParseID(fmt.Sprint(v))
			if err != nil {
				return nil, fieldErrors{"terrain": {fmt.Sprintf("id `%v` does not exist", v)}}, nil
			}
			if _, err := s.backend.Get(ctx, coll, id); errors.Is(err, ErrNoRecord) {
				return nil, fieldErrors{"terrain": {fmt.Sprintf("id `%v` does not exist", v)}}, nil
			} else if err != nil {
				return nil, nil, err
			}
			ids = append(ids, int64(id))
		case map[string]any:
			id, ferrs, err := s.terrainByNameOrCreate(ctx, v, requestID)
			if err != nil || ferrs != nil {
				return nil, ferrs, err
			}
			ids = append(ids, int64(id))
		default:
			return nil, fieldErrors{"terrain": {"must provide valid terrain id or data"}}, nil
		}
	}
	return ids, nil, nil
}

func (s *Server) terrainByNameOrCreate(ctx context.Context, obj map[string]any, requestID string) (entity.ID, fieldErrors, error) {
	coll := entity.KindTerrain.Collection()
	if name, ok := obj["name"].(string); ok {
		docs, err := s.backend.List(ctx, coll)
		if err != nil {
			return 0, nil, err
		}
		for _, d := range docs {
			var t entity.Terrain
			if err := json.Unmarshal(d.Payload, &t); err != nil {
				return 0, nil, err
			}
			if t.Name == name {
				return d.ID, nil, nil
			}
		}
	}
	merged := defaultsOf(entity.KindTerrain)
	for k, v := range obj {
		if k != "id" {
			merged[k] = v
		}
	}
	id, err := s.backend.NextID(ctx, coll)
	if err != nil {
		return 0, nil, err
	}
	t, ferrs, err := s.checkTerrain(ctx, id, merged)
	if err != nil {
		return 0, nil, err
	}
	if !ferrs.empty() {
		nested := fieldErrors{}
		for k, msgs := range ferrs {
			for _, m := range msgs {
				nested.add("terrain", k+": "+m)
			}
		}
		return 0, nested, nil
	}
	if err := s.putRecord(ctx, coll, t); err != nil {
		return 0, nil, err
	}
	s.emit(ctx, coll, audit.ActionCreated, t, requestID)
	return id, nil, nil
}

// defaultsOf returns the default document of a kind as a JSON map.
func defaultsOf(kind entity.Kind) map[string]any {
	var v any
	switch kind {
	case entity.KindTerrain:
		v = entity.TerrainSchema().Default()
	case entity.KindVirus:
		v = entity.VirusSchema().Default()
	case entity.KindSimulation:
		v = entity.SimulationSchema("").Default()
	}
	data, _ := json.Marshal(v)
	m := map[string]any{}
	_ = json.Unmarshal(data, &m)
	delete(m, "id")
	return m
}

func parsePathID(raw string) (entity.ID, bool) {
	raw = strings.TrimSuffix(raw, "/")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return entity.ID(n), true
}
