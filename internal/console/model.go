package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"epiconsole/internal/entity"
	"epiconsole/internal/flow"
	"epiconsole/internal/form"
)

// rowsMsg reports that some list view changed.
type rowsMsg struct{}

// submitDoneMsg reports the end of a dialog submit.
type submitDoneMsg struct {
	dialog flow.Dialog
	err    error
}

// deleteDoneMsg reports the end of a row delete.
type deleteDoneMsg struct {
	id  entity.ID
	err error
}

const terrainSelector = "terrain"

var (
	activeTab   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	inactiveTab = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dialogStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Width(16)
)

// dialogModel holds the inputs of one open dialog.
type dialogModel struct {
	dialog flow.Dialog
	names  []string
	inputs []textinput.Model
	focus  int
	cursor int // terrain selector position
}

// selector reports whether the focus is on the terrain selector.
func (d *dialogModel) selector() bool { return d.focus == len(d.inputs) }

type model struct {
	s       *Session
	ctx     context.Context
	tabs    []tabView
	editors map[flow.Dialog]editor
	dialogs map[flow.Dialog]*dialogModel
	active  int
	table   table.Model
	width   int
	height  int
	status  string
	err     error
}

func newModel(ctx context.Context, s *Session) model {
	m := model{
		s:       s,
		ctx:     ctx,
		tabs:    newTabs(s),
		editors: newEditors(s),
		dialogs: make(map[flow.Dialog]*dialogModel),
		width:   100,
		height:  24,
	}
	m.table = table.New(table.WithFocused(true), table.WithHeight(10))
	m.syncTable()
	return m
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetWidth(msg.Width)
		m.table.SetHeight(max(msg.Height-8, 3))
		return m, nil
	case rowsMsg:
		m.syncTable()
		return m, nil
	case submitDoneMsg:
		m.syncDialogs()
		if msg.err == nil {
			m.status = fmt.Sprintf("%s saved", msg.dialog)
		}
		return m, nil
	case deleteDoneMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = fmt.Sprintf("deleted %s", msg.id)
		}
		tab := m.tabs[m.active]
		return m, func() tea.Msg {
			_ = tab.Refresh(m.ctx)
			return rowsMsg{}
		}
	case tea.KeyMsg:
		var cmd tea.Cmd
		if top := m.topDialog(); top != nil {
			cmd = m.updateDialog(top, msg)
		} else {
			cmd = m.updateList(msg)
		}
		m.syncDialogs()
		return m, cmd
	}
	return m, nil
}

func (m *model) updateList(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c":
		return tea.Quit
	case "tab", "right":
		m.active = (m.active + 1) % len(m.tabs)
		m.syncTable()
	case "shift+tab", "left":
		m.active = (m.active + len(m.tabs) - 1) % len(m.tabs)
		m.syncTable()
	case "1", "2", "3":
		m.active = int(msg.String()[0]-'1') % len(m.tabs)
		m.syncTable()
	case "n":
		m.editors[m.tabs[m.active].Dialog()].Open()
	case "e":
		id, ok := m.selectedID()
		if !ok {
			return nil
		}
		m.err = m.tabs[m.active].Edit(id)
	case "r":
		tab := m.tabs[m.active]
		return func() tea.Msg {
			_ = tab.Refresh(m.ctx)
			return rowsMsg{}
		}
	case "d":
		tab := m.tabs[m.active]
		id, ok := m.selectedID()
		if !ok {
			return nil
		}
		ctx := m.ctx
		return func() tea.Msg {
			return deleteDoneMsg{id: id, err: tab.Delete(ctx, id)}
		}
	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return cmd
	}
	return nil
}

func (m *model) updateDialog(d *dialogModel, msg tea.KeyMsg) tea.Cmd {
	ed := m.editors[d.dialog]
	if ed.Phase() == form.PhaseSubmitting && msg.String() != "esc" {
		return nil
	}
	switch msg.String() {
	case "esc":
		ed.Cancel()
		return nil
	case "ctrl+c":
		return tea.Quit
	case "ctrl+t":
		if d.dialog == flow.Simulation {
			m.editors[flow.Terrain].Open()
		}
		return nil
	case "tab", "down":
		m.moveFocus(d, 1)
		return nil
	case "shift+tab", "up":
		m.moveFocus(d, -1)
		return nil
	case "enter":
		if err := m.commitAll(d); err != nil {
			m.err = err
			return nil
		}
		m.err = nil
		ctx := m.ctx
		return func() tea.Msg {
			return submitDoneMsg{dialog: d.dialog, err: ed.Submit(ctx)}
		}
	}
	if d.dialog == flow.Simulation && d.selector() {
		opts := m.s.TerrainOptions.Options(m.s.SimulationForm.Draft().TerrainIDs())
		switch msg.String() {
		case "t":
			m.editors[flow.Terrain].Open()
		case "left", "k":
			if d.cursor > 0 {
				d.cursor--
			}
		case "right", "j":
			if d.cursor < len(opts)-1 {
				d.cursor++
			}
		case " ", "x":
			if d.cursor < len(opts) {
				m.err = m.s.SelectTerrain(opts[d.cursor].ID)
			}
		}
		return nil
	}
	if d.focus < len(d.inputs) {
		var cmd tea.Cmd
		d.inputs[d.focus], cmd = d.inputs[d.focus].Update(msg)
		return cmd
	}
	return nil
}

// moveFocus commits the focused input so normalization shows before
// moving on.
func (m *model) moveFocus(d *dialogModel, delta int) {
	if d.focus < len(d.inputs) {
		m.err = m.commit(d, d.focus)
	}
	n := len(d.inputs)
	if d.dialog == flow.Simulation {
		n++
	}
	d.focus = (d.focus + delta + n) % n
	for i := range d.inputs {
		if i == d.focus {
			d.inputs[i].Focus()
		} else {
			d.inputs[i].Blur()
		}
	}
}

func (m *model) commit(d *dialogModel, i int) error {
	ed := m.editors[d.dialog]
	name := d.names[i]
	if err := ed.SetText(name, d.inputs[i].Value()); err != nil {
		return err
	}
	d.inputs[i].SetValue(ed.FieldText(name))
	return nil
}

func (m *model) commitAll(d *dialogModel) error {
	for i := range d.inputs {
		if err := m.commit(d, i); err != nil {
			return err
		}
	}
	return nil
}

// syncDialogs creates input state for newly opened dialogs and drops it for
// closed ones.
func (m *model) syncDialogs() {
	for dlg, ed := range m.editors {
		open := m.s.Flags.IsOpen(dlg)
		_, have := m.dialogs[dlg]
		switch {
		case open && !have:
			m.dialogs[dlg] = newDialogModel(dlg, ed)
		case !open && have:
			delete(m.dialogs, dlg)
		}
	}
}

func newDialogModel(dlg flow.Dialog, ed editor) *dialogModel {
	d := &dialogModel{dialog: dlg, names: ed.FieldNames()}
	for i, name := range d.names {
		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 256
		in.SetValue(ed.FieldText(name))
		if i == 0 {
			in.Focus()
		}
		d.inputs = append(d.inputs, in)
	}
	return d
}

// topDialog returns the dialog receiving keys. The terrain dialog sits on
// top of the simulation dialog when both are open.
func (m *model) topDialog() *dialogModel {
	for _, dlg := range []flow.Dialog{flow.Terrain, flow.Simulation, flow.Virus} {
		if d, ok := m.dialogs[dlg]; ok {
			return d
		}
	}
	return nil
}

// selectedID returns the id shown in the highlighted row. Rows may have been
// refreshed since the last draw, so the cursor index is not used directly.
func (m *model) selectedID() (entity.ID, bool) {
	row := m.table.SelectedRow()
	if len(row) == 0 {
		return 0, false
	}
	id, err := entity.ParseID(row[0])
	return id, err == nil
}

func (m *model) syncTable() {
	tab := m.tabs[m.active]
	m.table.SetRows(nil)
	m.table.SetColumns(tab.Columns())
	m.table.SetRows(tab.Rows())
	if m.table.Cursor() >= tab.Len() {
		m.table.SetCursor(max(tab.Len()-1, 0))
	}
}

func (m model) View() string {
	var b strings.Builder
	titles := make([]string, len(m.tabs))
	for i, t := range m.tabs {
		label := fmt.Sprintf(" %d %s ", i+1, t.Title())
		if i == m.active {
			titles[i] = activeTab.Render(label)
		} else {
			titles[i] = inactiveTab.Render(label)
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, titles...))
	b.WriteString("\n")

	if d := m.topDialog(); d != nil {
		b.WriteString(m.renderDialog(d))
	} else {
		tab := m.tabs[m.active]
		if err := tab.Err(); err != nil {
			b.WriteString(errorStyle.Render(wordwrap.String("cannot load: "+err.Error(), m.width)))
		} else {
			b.WriteString(m.table.View())
		}
	}
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(wordwrap.String(m.err.Error(), m.width)))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(m.status + "\n")
	}
	b.WriteString(inactiveTab.Render(m.help()))
	return b.String()
}

func (m model) help() string {
	if d := m.topDialog(); d != nil {
		h := "tab/↑↓ move  enter save  esc cancel"
		if d.dialog == flow.Simulation {
			h += "  ctrl+t new terrain  (selector: ←→ move, space toggle, t new terrain)"
		}
		return h
	}
	return "1-3/tab switch  n new  e edit  d delete  r refresh  q quit"
}

func (m model) renderDialog(d *dialogModel) string {
	ed := m.editors[d.dialog]
	var b strings.Builder
	title := "New " + string(d.dialog)
	if id, ok := ed.Editing(); ok {
		title = fmt.Sprintf("Edit %s %s", d.dialog, id)
	}
	if d.dialog == flow.Terrain && m.s.Flags.IsOpen(flow.Simulation) {
		title += " (inside simulation)"
	}
	b.WriteString(title + "\n\n")
	for i, name := range d.names {
		b.WriteString(labelStyle.Render(name) + d.inputs[i].View() + "\n")
	}
	if d.dialog == flow.Simulation {
		b.WriteString(labelStyle.Render(terrainSelector))
		opts := m.s.TerrainOptions.Options(m.s.SimulationForm.Draft().TerrainIDs())
		if len(opts) == 0 {
			b.WriteString("(no terrain)")
		}
		for i, o := range opts {
			mark := "[ ]"
			if o.Selected {
				mark = "[x]"
			}
			item := mark + " " + o.Label
			if d.selector() && i == d.cursor {
				item = activeTab.Render(item)
			}
			b.WriteString(item + "  ")
		}
		b.WriteString("\n")
	}
	if ed.Phase() == form.PhaseSubmitting {
		b.WriteString("\nsaving...\n")
	}
	if err := ed.Err(); err != nil {
		b.WriteString("\n" + errorStyle.Render(wordwrap.String(err.Error(), max(m.width-4, 20))) + "\n")
	}
	return dialogStyle.Render(b.String())
}
