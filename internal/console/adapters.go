package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"

	"epiconsole/internal/entity"
	"epiconsole/internal/flow"
	"epiconsole/internal/form"
	"epiconsole/internal/listview"
)

// tabView is the untyped face of one entity list shown as a tab.
type tabView interface {
	Title() string
	Dialog() flow.Dialog
	Columns() []table.Column
	Rows() []table.Row
	Err() error
	Len() int
	Refresh(ctx context.Context) error
	Delete(ctx context.Context, id entity.ID) error
	Edit(id entity.ID) error
}

type listTab[E entity.Record, P any] struct {
	title   string
	view    *listview.View[E]
	form    *form.Controller[E, P]
	del     func(context.Context, entity.ID) error
	columns []table.Column
	row     func(E) table.Row
}

func (t *listTab[E, P]) Title() string           { return t.title }
func (t *listTab[E, P]) Dialog() flow.Dialog     { return t.form.Dialog() }
func (t *listTab[E, P]) Columns() []table.Column { return t.columns }
func (t *listTab[E, P]) Err() error              { return t.view.Err() }
func (t *listTab[E, P]) Len() int                { return len(t.view.Rows()) }

func (t *listTab[E, P]) Refresh(ctx context.Context) error { return t.view.Refresh(ctx) }

func (t *listTab[E, P]) Delete(ctx context.Context, id entity.ID) error { return t.del(ctx, id) }

func (t *listTab[E, P]) Rows() []table.Row {
	recs := t.view.Rows()
	rows := make([]table.Row, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, t.row(r))
	}
	return rows
}

// Edit loads the listed record with id into the form.
func (t *listTab[E, P]) Edit(id entity.ID) error {
	for _, r := range t.view.Rows() {
		if r.RecordID() == id {
			return t.form.Edit(r)
		}
	}
	return fmt.Errorf("%s %s is no longer listed", strings.ToLower(t.title), id)
}

func newTabs(s *Session) []tabView {
	return []tabView{
		&listTab[entity.Terrain, entity.TerrainPatch]{
			title: "Terrain", view: s.Terrains, form: s.TerrainForm, del: s.Clients.Terrains.Delete,
			columns: []table.Column{
				{Title: "ID", Width: 5}, {Title: "Name", Width: 16}, {Title: "Value", Width: 9},
				{Title: "Color", Width: 9}, {Title: "Material", Width: 12}, {Title: "Walk", Width: 5},
				{Title: "Access", Width: 6},
			},
			row: func(t entity.Terrain) table.Row {
				material := ""
				if t.Material != nil {
					material = *t.Material
				}
				return table.Row{t.ID.String(), t.Name, t.Value, t.Color, material, yesNo(t.Walkable), strconv.Itoa(t.AccessLevel)}
			},
		},
		&listTab[entity.Virus, entity.VirusPatch]{
			title: "Virus", view: s.Viruses, form: s.VirusForm, del: s.Clients.Viruses.Delete,
			columns: []table.Column{
				{Title: "ID", Width: 5}, {Title: "Name", Width: 16}, {Title: "Attack", Width: 8},
				{Title: "Infection", Width: 9}, {Title: "Fatality", Width: 8},
			},
			row: func(v entity.Virus) table.Row {
				return table.Row{v.ID.String(), v.Name, rate(v.AttackRate), rate(v.InfectionRate), rate(v.FatalityRate)}
			},
		},
		&listTab[entity.Simulation, entity.SimulationPatch]{
			title: "Simulation", view: s.Simulations, form: s.SimulationForm, del: s.Clients.Simulations.Delete,
			columns: []table.Column{
				{Title: "ID", Width: 5}, {Title: "Name", Width: 16}, {Title: "Mapfile", Width: 24},
				{Title: "Scale", Width: 6}, {Title: "Iter", Width: 6}, {Title: "Terrain", Width: 20},
			},
			row: func(sim entity.Simulation) table.Row {
				names := make([]string, 0, len(sim.Terrain))
				for _, ref := range sim.Terrain {
					if ref.Terrain != nil {
						names = append(names, ref.Terrain.Name)
					} else {
						names = append(names, "#"+ref.ID.String())
					}
				}
				return table.Row{sim.ID.String(), sim.Name, sim.Mapfile, strconv.FormatFloat(sim.XYScale, 'g', -1, 64),
					strconv.Itoa(sim.MaxIter), strings.Join(names, ",")}
			},
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func rate(f float64) string { return strconv.FormatFloat(f, 'f', 3, 64) }

// editor is the untyped face of one form controller.
type editor interface {
	Dialog() flow.Dialog
	FieldNames() []string
	FieldText(name string) string
	SetText(name, text string) error
	Open()
	Cancel()
	Submit(ctx context.Context) error
	Phase() form.Phase
	Err() error
	Editing() (entity.ID, bool)
}

type formEditor[E entity.Record, P any] struct {
	*form.Controller[E, P]
	skip map[string]bool
}

func (f formEditor[E, P]) FieldNames() []string {
	var out []string
	for _, n := range f.Schema().FieldNames() {
		if !f.skip[n] {
			out = append(out, n)
		}
	}
	return out
}

func (f formEditor[E, P]) Submit(ctx context.Context) error {
	_, err := f.Controller.Submit(ctx)
	return err
}

func newEditors(s *Session) map[flow.Dialog]editor {
	return map[flow.Dialog]editor{
		flow.Terrain: formEditor[entity.Terrain, entity.TerrainPatch]{Controller: s.TerrainForm},
		flow.Virus:   formEditor[entity.Virus, entity.VirusPatch]{Controller: s.VirusForm},
		// terrain is edited through the selector, not as text
		flow.Simulation: formEditor[entity.Simulation, entity.SimulationPatch]{
			Controller: s.SimulationForm, skip: map[string]bool{"terrain": true},
		},
	}
}
