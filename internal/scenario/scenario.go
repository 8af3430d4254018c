// Package scenario loads scenario config files and imports the entities they
// describe into the store.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"epiconsole/internal/entity"
)

// Scenario is the entity part of a scenario config file: one simulation with
// its terrain definitions and the virus it runs with.
type Scenario struct {
	Name       string
	Simulation entity.Simulation
	Terrain    []entity.Terrain
	Virus      *entity.Virus
}

type file struct {
	Scenario struct {
		Name  string    `yaml:"name"`
		Sim   yaml.Node `yaml:"sim"`
		Virus yaml.Node `yaml:"virus"`
	} `yaml:"scenario"`
}

// Load reads a YAML scenario definition from disk. Omitted fields take the
// entity defaults; terrain entries are full terrain objects.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if sc.Name == "" {
		sc.Name = sc.Simulation.Name
	}
	return sc, nil
}

// Parse decodes a scenario document.
func Parse(b []byte) (*Scenario, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if f.Scenario.Sim.Kind == 0 {
		return nil, fmt.Errorf("parse scenario: scenario.sim missing")
	}
	sc := &Scenario{Name: f.Scenario.Name}

	terrainNode, simNode := splitKey(&f.Scenario.Sim, "terrain")
	sc.Simulation = entity.SimulationSchema("").Default()
	if err := simNode.Decode(&sc.Simulation); err != nil {
		return nil, fmt.Errorf("parse scenario.sim: %w", err)
	}
	if terrainNode != nil {
		var items []yaml.Node
		if err := terrainNode.Decode(&items); err != nil {
			return nil, fmt.Errorf("parse scenario.sim.terrain: must be passed as array")
		}
		for i := range items {
			t := entity.TerrainSchema().Default()
			if err := items[i].Decode(&t); err != nil {
				return nil, fmt.Errorf("parse scenario.sim.terrain[%d]: %w", i, err)
			}
			sc.Terrain = append(sc.Terrain, t)
		}
	}

	if f.Scenario.Virus.Kind != 0 {
		v := entity.VirusSchema().Default()
		if err := f.Scenario.Virus.Decode(&v); err != nil {
			return nil, fmt.Errorf("parse scenario.virus: %w", err)
		}
		sc.Virus = &v
	}
	return sc, nil
}

// splitKey returns the value node of key and a copy of the mapping without it.
func splitKey(m *yaml.Node, key string) (*yaml.Node, *yaml.Node) {
	rest := *m
	rest.Content = nil
	var val *yaml.Node
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			val = m.Content[i+1]
			continue
		}
		rest.Content = append(rest.Content, m.Content[i], m.Content[i+1])
	}
	return val, &rest
}
