package dashboard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderMissingEnv(t *testing.T) {
	getenv := func(string) string { return "" }
	if err := Render(t.TempDir(), getenv); err == nil {
		t.Fatalf("expected error for missing env vars")
	}
}

func TestRenderSuccess(t *testing.T) {
	env := map[string]string{EnvPrometheusUID: "uid1", EnvGreptimeUID: "uid2"}
	dir := t.TempDir()
	if err := Render(dir, func(k string) string { return env[k] }); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "store-requests.json"))
	if err != nil {
		t.Fatalf("read dashboard: %v", err)
	}
	if !strings.Contains(string(b), "uid1") {
		t.Fatalf("prometheus uid not rendered")
	}

	b, err = os.ReadFile(filepath.Join(dir, "audit-trail.json"))
	if err != nil {
		t.Fatalf("read audit dashboard: %v", err)
	}
	if !strings.Contains(string(b), "uid2") || !strings.Contains(string(b), "FROM entity_mutations") {
		t.Fatalf("audit dashboard not rendered: %s", b)
	}
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("rendered dashboard is not JSON: %v", err)
	}
}
