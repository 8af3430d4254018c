package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"epiconsole/internal/api"
	"epiconsole/internal/config"
	"epiconsole/internal/entity"
	"epiconsole/internal/form"
)

// entityCommand describes the CRUD subcommands of one entity kind.
type entityCommand[E entity.Record, P any] struct {
	kind    entity.Kind
	aliases []string
	schema  func(cfg *config.Config) entity.Schema[E, P]
	client  func(set *api.Set) *api.Client[E, P]
}

var (
	terrainCommand = entityCommand[entity.Terrain, entity.TerrainPatch]{
		kind:    entity.KindTerrain,
		aliases: []string{"terrains"},
		schema:  func(*config.Config) entity.Schema[entity.Terrain, entity.TerrainPatch] { return entity.TerrainSchema() },
		client:  func(s *api.Set) *api.TerrainClient { return s.Terrains },
	}
	virusCommand = entityCommand[entity.Virus, entity.VirusPatch]{
		kind:    entity.KindVirus,
		aliases: []string{"viruses"},
		schema:  func(*config.Config) entity.Schema[entity.Virus, entity.VirusPatch] { return entity.VirusSchema() },
		client:  func(s *api.Set) *api.VirusClient { return s.Viruses },
	}
	simulationCommand = entityCommand[entity.Simulation, entity.SimulationPatch]{
		kind:    entity.KindSimulation,
		aliases: []string{"simulations", "sim"},
		schema: func(cfg *config.Config) entity.Schema[entity.Simulation, entity.SimulationPatch] {
			return entity.SimulationSchema(cfg.AssetPrefix)
		},
		client: func(s *api.Set) *api.SimulationClient { return s.Simulations },
	}
)

// entityEnv is what every entity subcommand needs at run time.
type entityEnv[E entity.Record, P any] struct {
	cfg    *config.Config
	schema entity.Schema[E, P]
	client *api.Client[E, P]
	form   *form.Controller[E, P]
}

func (c entityCommand[E, P]) env(cmd *cobra.Command) (*entityEnv[E, P], error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := newLogger(cmd.ErrOrStderr(), cfg)
	set, err := newClientSet(cfg, log)
	if err != nil {
		return nil, err
	}
	schema := c.schema(cfg)
	client := c.client(set)
	return &entityEnv[E, P]{
		cfg:    cfg,
		schema: schema,
		client: client,
		form:   form.New(schema, form.Store[E, P](client), nil, log),
	}, nil
}

func newEntityCmd[E entity.Record, P any](c entityCommand[E, P]) *cobra.Command {
	name := string(c.kind)
	root := &cobra.Command{
		Use:     name,
		Aliases: c.aliases,
		Short:   fmt.Sprintf("Manage %s records", name),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List every %s", name),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := c.env(cmd)
			if err != nil {
				return err
			}
			recs, err := env.client.List(cmd.Context())
			if err != nil {
				return err
			}
			return renderList(cmd.OutOrStdout(), outputFormat, env.schema, recs)
		},
	}

	get := &cobra.Command{
		Use:   "get ID",
		Short: fmt.Sprintf("Show one %s", name),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := entity.ParseID(args[0])
			if err != nil {
				return err
			}
			env, err := c.env(cmd)
			if err != nil {
				return err
			}
			rec, err := env.client.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return renderOne(cmd.OutOrStdout(), outputFormat, env.schema, rec)
		},
	}

	var createSets []string
	create := &cobra.Command{
		Use:   "create --set field=value ...",
		Short: fmt.Sprintf("Create a %s from the defaults and the given fields", name),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := c.env(cmd)
			if err != nil {
				return err
			}
			if err := applySets(env.form, createSets); err != nil {
				return err
			}
			saved, err := env.form.Submit(cmd.Context())
			if err != nil {
				return err
			}
			return renderOne(cmd.OutOrStdout(), outputFormat, env.schema, saved)
		},
	}
	create.Flags().StringArrayVar(&createSets, "set", nil, "field=value to set on the new record (repeatable)")

	var updateSets []string
	update := &cobra.Command{
		Use:   "update ID --set field=value ...",
		Short: fmt.Sprintf("Change fields of an existing %s", name),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := entity.ParseID(args[0])
			if err != nil {
				return err
			}
			if len(updateSets) == 0 {
				return fmt.Errorf("nothing to update: pass at least one --set")
			}
			env, err := c.env(cmd)
			if err != nil {
				return err
			}
			rec, err := env.client.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := env.form.Edit(rec); err != nil {
				return err
			}
			if err := applySets(env.form, updateSets); err != nil {
				return err
			}
			saved, err := env.form.Submit(cmd.Context())
			if err != nil {
				return err
			}
			return renderOne(cmd.OutOrStdout(), outputFormat, env.schema, saved)
		},
	}
	update.Flags().StringArrayVar(&updateSets, "set", nil, "field=value to change (repeatable)")

	del := &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   fmt.Sprintf("Delete a %s", name),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := entity.ParseID(args[0])
			if err != nil {
				return err
			}
			env, err := c.env(cmd)
			if err != nil {
				return err
			}
			if err := env.client.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s\n", name, id)
			return nil
		},
	}

	root.AddCommand(list, get, create, update, del)
	return root
}

// applySets parses every field=value pair through the form so the same
// normalization as the console applies.
func applySets[E entity.Record, P any](c *form.Controller[E, P], sets []string) error {
	for _, kv := range sets {
		field, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(field) == "" {
			return fmt.Errorf("--set %q: expected field=value", kv)
		}
		if err := c.SetText(strings.TrimSpace(field), value); err != nil {
			return err
		}
	}
	return nil
}
