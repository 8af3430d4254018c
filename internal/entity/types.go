// Entity records exchanged with the simulation store
package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a server-assigned record identifier. Zero means not yet assigned.
type ID int64

func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseID parses a decimal identifier. Only positive values are valid.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid id %q: must be positive", s)
	}
	return ID(n), nil
}

// Kind names one entity type.
type Kind string

const (
	KindTerrain    Kind = "terrain"
	KindVirus      Kind = "virus"
	KindSimulation Kind = "simulation"
)

// Kinds lists every entity kind in display order.
var Kinds = []Kind{KindTerrain, KindVirus, KindSimulation}

// Collection returns the store collection name for the kind.
func (k Kind) Collection() string {
	switch k {
	case KindTerrain:
		return "terrains"
	case KindVirus:
		return "viruses"
	case KindSimulation:
		return "simulations"
	}
	return string(k) + "s"
}

// Path returns the collection resource path, e.g. "/terrains/".
func (k Kind) Path() string { return "/" + k.Collection() + "/" }

// Record is implemented by every entity type.
type Record interface {
	RecordID() ID
	RecordName() string
}

// Terrain describes the semantics of one map tile color.
type Terrain struct {
	ID          ID      `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string  `json:"name" yaml:"name"`
	Value       string  `json:"value" yaml:"value"`
	Color       string  `json:"color" yaml:"color"`
	Material    *string `json:"material" yaml:"material"`
	Walkable    bool    `json:"walkable" yaml:"walkable"`
	Interactive bool    `json:"interactive" yaml:"interactive"`
	Restricted  bool    `json:"restricted" yaml:"restricted"`
	AccessLevel int     `json:"access_level" yaml:"access_level"`
}

func (t Terrain) RecordID() ID       { return t.ID }
func (t Terrain) RecordName() string { return t.Name }

// Virus holds pathogen parameters. Rates are probabilities owned by the store.
type Virus struct {
	ID            ID      `json:"id,omitempty" yaml:"id,omitempty"`
	Name          string  `json:"name" yaml:"name"`
	AttackRate    float64 `json:"attack_rate" yaml:"attack_rate"`
	InfectionRate float64 `json:"infection_rate" yaml:"infection_rate"`
	FatalityRate  float64 `json:"fatality_rate" yaml:"fatality_rate"`
}

func (v Virus) RecordID() ID       { return v.ID }
func (v Virus) RecordName() string { return v.Name }

// Simulation is a run configuration referencing a map file and its terrain.
type Simulation struct {
	ID             ID           `json:"id,omitempty" yaml:"id,omitempty"`
	Name           string       `json:"name" yaml:"name"`
	Mapfile        string       `json:"mapfile" yaml:"mapfile"`
	XYScale        float64      `json:"xy_scale" yaml:"xy_scale"`
	TStep          int          `json:"t_step" yaml:"t_step"`
	MaxIter        int          `json:"max_iter" yaml:"max_iter"`
	SaveResolution int          `json:"save_resolution" yaml:"save_resolution"`
	SaveVerbose    bool         `json:"save_verbose" yaml:"save_verbose"`
	Terrain        []TerrainRef `json:"terrain" yaml:"terrain"`
}

func (s Simulation) RecordID() ID       { return s.ID }
func (s Simulation) RecordName() string { return s.Name }

// TerrainIDs returns the referenced terrain ids in order.
func (s Simulation) TerrainIDs() []ID {
	ids := make([]ID, 0, len(s.Terrain))
	for _, r := range s.Terrain {
		ids = append(ids, r.ID)
	}
	return ids
}

// TerrainRef points at a Terrain record. Stores may answer with the full
// object; the client always writes the bare id.
type TerrainRef struct {
	ID      ID
	Terrain *Terrain
}

// RefsOf builds references from bare ids.
func RefsOf(ids []ID) []TerrainRef {
	refs := make([]TerrainRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, TerrainRef{ID: id})
	}
	return refs
}

func (r TerrainRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ID)
}

func (r *TerrainRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var t Terrain
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		r.ID = t.ID
		r.Terrain = &t
		return nil
	}
	var id ID
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("terrain reference: %w", err)
	}
	r.ID = id
	r.Terrain = nil
	return nil
}

func (r TerrainRef) MarshalYAML() (any, error) { return int64(r.ID), nil }

// Option is one entry of a multi-selection control.
type Option struct {
	ID       ID
	Label    string
	Selected bool
}
