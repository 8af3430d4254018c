// Package dashboard renders Grafana dashboards for the store metrics and the
// audit trail.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"epiconsole/internal/audit"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// Env names the datasource uids the templates need.
const (
	EnvPrometheusUID = "PROMETHEUS_DATASOURCE_UID"
	EnvGreptimeUID   = "GREPTIMEDB_DATASOURCE_UID"
)

// Render parses the dashboard templates and writes rendered dashboards to
// outDir. getenv resolves datasource uids; a missing one is an error.
func Render(outDir string, getenv func(string) string) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}
	names, err := templates.ReadDir("templates")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	data := struct{ AuditTable string }{AuditTable: audit.DefaultTable}
	for _, e := range names {
		t, err := template.New(e.Name()).Funcs(funcMap).ParseFS(templates, "templates/"+e.Name())
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(e.Name(), ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, data); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
