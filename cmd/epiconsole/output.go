package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"epiconsole/internal/api"
	"epiconsole/internal/entity"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the width of w or 80 when it is not a terminal.
func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 80
}

// resolveFormat maps "auto" to table on a terminal and JSON otherwise.
func resolveFormat(w io.Writer, format string) (string, error) {
	switch format {
	case "", "auto":
		if isTerminal(w) {
			return "table", nil
		}
		return "json", nil
	case "table", "json", "yaml":
		return format, nil
	}
	return "", fmt.Errorf("unknown output format %q", format)
}

func renderList[E entity.Record, P any](w io.Writer, format string, schema entity.Schema[E, P], recs []E) error {
	format, err := resolveFormat(w, format)
	if err != nil {
		return err
	}
	switch format {
	case "json":
		if recs == nil {
			recs = []E{}
		}
		return writeJSON(w, recs)
	case "yaml":
		return yaml.NewEncoder(w).Encode(recs)
	}
	_, err = fmt.Fprintln(w, recordTable(schema, recs))
	return err
}

func renderOne[E entity.Record, P any](w io.Writer, format string, schema entity.Schema[E, P], rec E) error {
	format, err := resolveFormat(w, format)
	if err != nil {
		return err
	}
	switch format {
	case "json":
		return writeJSON(w, rec)
	case "yaml":
		return yaml.NewEncoder(w).Encode(rec)
	}
	_, err = fmt.Fprintln(w, recordTable(schema, []E{rec}))
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// recordTable lays records out with one column per schema field.
func recordTable[E entity.Record, P any](schema entity.Schema[E, P], recs []E) string {
	names := schema.FieldNames()
	headers := append([]string{"id"}, names...)
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		row := []string{r.RecordID().String()}
		for _, n := range names {
			f, _ := schema.Field(n)
			row = append(row, f.Text(r))
		}
		rows = append(rows, row)
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		Render()
}

// printError writes err for a human, listing validation messages per field.
func printError(w io.Writer, err error) {
	msg := err.Error()
	var verr *api.ValidationError
	if errors.As(err, &verr) && len(verr.Fields) > 0 {
		var b strings.Builder
		b.WriteString("validation failed")
		if verr.Detail != "" {
			b.WriteString(": " + verr.Detail)
		}
		keys := make([]string, 0, len(verr.Fields))
		for k := range verr.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			for _, m := range verr.Fields[k] {
				fmt.Fprintf(&b, "\n  %s: %s", k, m)
			}
		}
		msg = b.String()
	}
	msg = wordwrap.String("error: "+msg, terminalWidth(w))
	if isTerminal(w) {
		msg = errStyle.Render(msg)
	}
	fmt.Fprintln(w, msg)
}
