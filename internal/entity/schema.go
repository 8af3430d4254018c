package entity

import "encoding/json"

// Schema ties an entity type to its defaults, editable fields and patch shape.
type Schema[E Record, P any] struct {
	Kind    Kind
	Default func() E
	Fields  []TextField[E]
	// Normalize rewrites e after the named field changed. Nil means no rewrite.
	Normalize func(e E, field string) E
	// Patch builds a partial update carrying only the named fields, or every
	// editable field when none are named.
	Patch func(e E, fields ...string) P
}

// Field looks up an editable field by name.
func (s Schema[E, P]) Field(name string) (TextField[E], bool) {
	for _, f := range s.Fields {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

// FieldNames lists editable field names in form order.
func (s Schema[E, P]) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name()
	}
	return names
}

// Apply returns e with the named field normalized, if the schema normalizes.
func (s Schema[E, P]) Apply(e E, field string) E {
	if s.Normalize == nil {
		return e
	}
	return s.Normalize(e, field)
}

// TerrainPatch is a partial Terrain update. Nil fields are left untouched.
type TerrainPatch struct {
	Name        *string `json:"name,omitempty"`
	Value       *string `json:"value,omitempty"`
	Color       *string `json:"color,omitempty"`
	Material    *string `json:"material,omitempty"`
	Walkable    *bool   `json:"walkable,omitempty"`
	Interactive *bool   `json:"interactive,omitempty"`
	Restricted  *bool   `json:"restricted,omitempty"`
	AccessLevel *int    `json:"access_level,omitempty"`

	// ClearMaterial sends an explicit null for material when Material is nil.
	ClearMaterial bool `json:"-"`
}

// MarshalJSON writes "material": null when the patch clears the material.
func (p TerrainPatch) MarshalJSON() ([]byte, error) {
	type plain TerrainPatch
	b, err := json.Marshal(plain(p))
	if err != nil || !p.ClearMaterial || p.Material != nil {
		return b, err
	}
	if len(b) == 2 {
		return []byte(`{"material":null}`), nil
	}
	return append([]byte(`{"material":null,`), b[1:]...), nil
}

// VirusPatch is a partial Virus update.
type VirusPatch struct {
	Name          *string  `json:"name,omitempty"`
	AttackRate    *float64 `json:"attack_rate,omitempty"`
	InfectionRate *float64 `json:"infection_rate,omitempty"`
	FatalityRate  *float64 `json:"fatality_rate,omitempty"`
}

// SimulationPatch is a partial Simulation update.
type SimulationPatch struct {
	Name           *string  `json:"name,omitempty"`
	Mapfile        *string  `json:"mapfile,omitempty"`
	XYScale        *float64 `json:"xy_scale,omitempty"`
	TStep          *int     `json:"t_step,omitempty"`
	MaxIter        *int     `json:"max_iter,omitempty"`
	SaveResolution *int     `json:"save_resolution,omitempty"`
	SaveVerbose    *bool    `json:"save_verbose,omitempty"`
	Terrain        *[]ID    `json:"terrain,omitempty"`
}

func ptr[T any](v T) *T { return &v }

func wants(fields []string, name string) bool {
	if len(fields) == 0 {
		return true
	}
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

// TerrainSchema describes Terrain records.
func TerrainSchema() Schema[Terrain, TerrainPatch] {
	return Schema[Terrain, TerrainPatch]{
		Kind: KindTerrain,
		Default: func() Terrain {
			return Terrain{Walkable: true}
		},
		Fields: []TextField[Terrain]{
			TerrainName, TerrainValue, TerrainColor, TerrainMaterial,
			TerrainAccessLevel, TerrainWalkable, TerrainInteractive, TerrainRestricted,
		},
		Patch: func(t Terrain, fields ...string) TerrainPatch {
			var p TerrainPatch
			if wants(fields, "name") {
				p.Name = ptr(t.Name)
			}
			if wants(fields, "value") {
				p.Value = ptr(t.Value)
			}
			if wants(fields, "color") {
				p.Color = ptr(t.Color)
			}
			if wants(fields, "material") {
				if t.Material != nil {
					p.Material = ptr(*t.Material)
				} else {
					p.ClearMaterial = true
				}
			}
			if wants(fields, "walkable") {
				p.Walkable = ptr(t.Walkable)
			}
			if wants(fields, "interactive") {
				p.Interactive = ptr(t.Interactive)
			}
			if wants(fields, "restricted") {
				p.Restricted = ptr(t.Restricted)
			}
			if wants(fields, "access_level") {
				p.AccessLevel = ptr(t.AccessLevel)
			}
			return p
		},
	}
}

// VirusSchema describes Virus records.
func VirusSchema() Schema[Virus, VirusPatch] {
	return Schema[Virus, VirusPatch]{
		Kind: KindVirus,
		Default: func() Virus {
			return Virus{AttackRate: 0.07, InfectionRate: 0.021, FatalityRate: 0.01}
		},
		Fields: []TextField[Virus]{VirusName, VirusAttackRate, VirusInfectionRate, VirusFatalityRate},
		Patch: func(v Virus, fields ...string) VirusPatch {
			var p VirusPatch
			if wants(fields, "name") {
				p.Name = ptr(v.Name)
			}
			if wants(fields, "attack_rate") {
				p.AttackRate = ptr(v.AttackRate)
			}
			if wants(fields, "infection_rate") {
				p.InfectionRate = ptr(v.InfectionRate)
			}
			if wants(fields, "fatality_rate") {
				p.FatalityRate = ptr(v.FatalityRate)
			}
			return p
		},
	}
}

// SimulationSchema describes Simulation records. Map file paths are
// normalized against assetPrefix (DefaultAssetPrefix when empty).
func SimulationSchema(assetPrefix string) Schema[Simulation, SimulationPatch] {
	return Schema[Simulation, SimulationPatch]{
		Kind: KindSimulation,
		Default: func() Simulation {
			return Simulation{
				XYScale:        10.0,
				TStep:          1,
				MaxIter:        100,
				SaveResolution: 60,
				Terrain:        []TerrainRef{},
			}
		},
		Fields: []TextField[Simulation]{
			SimulationName, SimulationMapfile, SimulationTStep, SimulationSaveResolution,
			SimulationMaxIter, SimulationXYScale, SimulationSaveVerbose, SimulationTerrain,
		},
		Normalize: func(s Simulation, field string) Simulation {
			if field == SimulationMapfile.Name() {
				s.Mapfile = NormalizeMapfile(s.Mapfile, assetPrefix)
			}
			return s
		},
		Patch: func(s Simulation, fields ...string) SimulationPatch {
			var p SimulationPatch
			if wants(fields, "name") {
				p.Name = ptr(s.Name)
			}
			if wants(fields, "mapfile") {
				p.Mapfile = ptr(s.Mapfile)
			}
			if wants(fields, "xy_scale") {
				p.XYScale = ptr(s.XYScale)
			}
			if wants(fields, "t_step") {
				p.TStep = ptr(s.TStep)
			}
			if wants(fields, "max_iter") {
				p.MaxIter = ptr(s.MaxIter)
			}
			if wants(fields, "save_resolution") {
				p.SaveResolution = ptr(s.SaveResolution)
			}
			if wants(fields, "save_verbose") {
				p.SaveVerbose = ptr(s.SaveVerbose)
			}
			if wants(fields, "terrain") {
				p.Terrain = ptr(s.TerrainIDs())
			}
			return p
		},
	}
}
