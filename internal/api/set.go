package api

import "epiconsole/internal/entity"

type (
	// TerrainClient serves the terrains collection.
	TerrainClient = Client[entity.Terrain, entity.TerrainPatch]
	// VirusClient serves the viruses collection.
	VirusClient = Client[entity.Virus, entity.VirusPatch]
	// SimulationClient serves the simulations collection.
	SimulationClient = Client[entity.Simulation, entity.SimulationPatch]
)

// Set bundles one client per entity kind, sharing transport and metrics.
type Set struct {
	Terrains    *TerrainClient
	Viruses     *VirusClient
	Simulations *SimulationClient
}

// NewSet builds clients for every collection under baseURL.
func NewSet(baseURL string, opts Options) (*Set, error) {
	terrains, err := NewClient[entity.Terrain, entity.TerrainPatch](baseURL, entity.KindTerrain, opts)
	if err != nil {
		return nil, err
	}
	viruses, err := NewClient[entity.Virus, entity.VirusPatch](baseURL, entity.KindVirus, opts)
	if err != nil {
		return nil, err
	}
	sims, err := NewClient[entity.Simulation, entity.SimulationPatch](baseURL, entity.KindSimulation, opts)
	if err != nil {
		return nil, err
	}
	return &Set{Terrains: terrains, Viruses: viruses, Simulations: sims}, nil
}
