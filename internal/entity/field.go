package entity

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field is a typed accessor for one named field of entity type E. Values of
// type V are checked at compile time; text input goes through the field's
// parser and never reaches the record unparsed.
type Field[E any, V any] struct {
	name   string
	get    func(E) V
	set    func(*E, V)
	parse  func(string) (V, error)
	format func(V) string
}

// TextField is the untyped view of a Field used by text-driven inputs.
type TextField[E any] interface {
	Name() string
	Text(E) string
	WithText(E, string) (E, error)
}

// FieldError reports text that could not be parsed for a field.
type FieldError struct {
	Field string
	Input string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: cannot use %q: %v", e.Field, e.Input, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func (f Field[E, V]) Name() string { return f.name }

// Get returns the field's current value in e.
func (f Field[E, V]) Get(e E) V { return f.get(e) }

// With returns a copy of e with the field replaced by v.
func (f Field[E, V]) With(e E, v V) E {
	f.set(&e, v)
	return e
}

// Text formats the field's value for display in an input.
func (f Field[E, V]) Text(e E) string { return f.format(f.get(e)) }

// WithText parses s and returns the updated copy. On error e is returned unchanged.
func (f Field[E, V]) WithText(e E, s string) (E, error) {
	v, err := f.parse(s)
	if err != nil {
		return e, &FieldError{Field: f.name, Input: s, Err: err}
	}
	return f.With(e, v), nil
}

func stringField[E any](name string, get func(E) string, set func(*E, string)) Field[E, string] {
	return Field[E, string]{
		name:   name,
		get:    get,
		set:    set,
		parse:  func(s string) (string, error) { return s, nil },
		format: func(v string) string { return v },
	}
}

func optionalStringField[E any](name string, get func(E) *string, set func(*E, *string)) Field[E, *string] {
	return Field[E, *string]{
		name: name,
		get:  get,
		set:  set,
		parse: func(s string) (*string, error) {
			if strings.TrimSpace(s) == "" {
				return nil, nil
			}
			return &s, nil
		},
		format: func(v *string) string {
			if v == nil {
				return ""
			}
			return *v
		},
	}
}

func boolField[E any](name string, get func(E) bool, set func(*E, bool)) Field[E, bool] {
	return Field[E, bool]{
		name:   name,
		get:    get,
		set:    set,
		parse:  func(s string) (bool, error) { return strconv.ParseBool(strings.TrimSpace(s)) },
		format: strconv.FormatBool,
	}
}

func intField[E any](name string, get func(E) int, set func(*E, int)) Field[E, int] {
	return Field[E, int]{
		name:   name,
		get:    get,
		set:    set,
		parse:  func(s string) (int, error) { return strconv.Atoi(strings.TrimSpace(s)) },
		format: strconv.Itoa,
	}
}

func floatField[E any](name string, get func(E) float64, set func(*E, float64)) Field[E, float64] {
	return Field[E, float64]{
		name: name,
		get:  get,
		set:  set,
		parse: func(s string) (float64, error) {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return 0, err
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("not a finite number")
			}
			return v, nil
		},
		format: func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) },
	}
}

func idListField[E any](name string, get func(E) []ID, set func(*E, []ID)) Field[E, []ID] {
	return Field[E, []ID]{
		name: name,
		get:  get,
		set:  set,
		parse: func(s string) ([]ID, error) {
			ids := []ID{}
			for _, part := range strings.Split(s, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				id, err := ParseID(part)
				if err != nil {
					return nil, err
				}
				ids = append(ids, id)
			}
			return ids, nil
		},
		format: func(ids []ID) string {
			parts := make([]string, len(ids))
			for i, id := range ids {
				parts[i] = id.String()
			}
			return strings.Join(parts, ",")
		},
	}
}

// Terrain fields.
var (
	TerrainName = stringField("name",
		func(t Terrain) string { return t.Name }, func(t *Terrain, v string) { t.Name = v })
	TerrainValue = stringField("value",
		func(t Terrain) string { return t.Value }, func(t *Terrain, v string) { t.Value = v })
	TerrainColor = stringField("color",
		func(t Terrain) string { return t.Color }, func(t *Terrain, v string) { t.Color = v })
	TerrainMaterial = optionalStringField("material",
		func(t Terrain) *string { return t.Material }, func(t *Terrain, v *string) { t.Material = v })
	TerrainWalkable = boolField("walkable",
		func(t Terrain) bool { return t.Walkable }, func(t *Terrain, v bool) { t.Walkable = v })
	TerrainInteractive = boolField("interactive",
		func(t Terrain) bool { return t.Interactive }, func(t *Terrain, v bool) { t.Interactive = v })
	TerrainRestricted = boolField("restricted",
		func(t Terrain) bool { return t.Restricted }, func(t *Terrain, v bool) { t.Restricted = v })
	TerrainAccessLevel = intField("access_level",
		func(t Terrain) int { return t.AccessLevel }, func(t *Terrain, v int) { t.AccessLevel = v })
)

// Virus fields.
var (
	VirusName = stringField("name",
		func(v Virus) string { return v.Name }, func(v *Virus, s string) { v.Name = s })
	VirusAttackRate = floatField("attack_rate",
		func(v Virus) float64 { return v.AttackRate }, func(v *Virus, f float64) { v.AttackRate = f })
	VirusInfectionRate = floatField("infection_rate",
		func(v Virus) float64 { return v.InfectionRate }, func(v *Virus, f float64) { v.InfectionRate = f })
	VirusFatalityRate = floatField("fatality_rate",
		func(v Virus) float64 { return v.FatalityRate }, func(v *Virus, f float64) { v.FatalityRate = f })
)

// Simulation fields.
var (
	SimulationName = stringField("name",
		func(s Simulation) string { return s.Name }, func(s *Simulation, v string) { s.Name = v })
	SimulationMapfile = stringField("mapfile",
		func(s Simulation) string { return s.Mapfile }, func(s *Simulation, v string) { s.Mapfile = v })
	SimulationXYScale = floatField("xy_scale",
		func(s Simulation) float64 { return s.XYScale }, func(s *Simulation, v float64) { s.XYScale = v })
	SimulationTStep = intField("t_step",
		func(s Simulation) int { return s.TStep }, func(s *Simulation, v int) { s.TStep = v })
	SimulationMaxIter = intField("max_iter",
		func(s Simulation) int { return s.MaxIter }, func(s *Simulation, v int) { s.MaxIter = v })
	SimulationSaveResolution = intField("save_resolution",
		func(s Simulation) int { return s.SaveResolution }, func(s *Simulation, v int) { s.SaveResolution = v })
	SimulationSaveVerbose = boolField("save_verbose",
		func(s Simulation) bool { return s.SaveVerbose }, func(s *Simulation, v bool) { s.SaveVerbose = v })
	SimulationTerrain = idListField("terrain",
		func(s Simulation) []ID { return s.TerrainIDs() }, func(s *Simulation, ids []ID) { s.Terrain = RefsOf(ids) })
)
