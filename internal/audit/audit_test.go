package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"epiconsole/internal/logging"
)

type recordingWriter struct {
	events []Event
	err    error
}

func (r *recordingWriter) Write(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestMultiWriterReachesEveryWriter(t *testing.T) {
	failing := &recordingWriter{err: errors.New("disk full")}
	ok := &recordingWriter{}
	mw := NewMultiWriter(failing, nil, ok)
	if mw.Len() != 2 {
		t.Fatalf("len = %d", mw.Len())
	}
	ev := NewEvent("terrains", ActionCreated, 1, "WATER", "req-1")
	if err := mw.Write(context.Background(), ev); err == nil {
		t.Fatalf("expected joined error")
	}
	if len(failing.events) != 1 || len(ok.events) != 1 {
		t.Fatalf("events: %d / %d", len(failing.events), len(ok.events))
	}
	if ok.events[0].ID == "" || ok.events[0].Timestamp.IsZero() {
		t.Fatalf("event not stamped: %+v", ok.events[0])
	}
}

func TestJSONWriterOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)
	_ = w.Write(context.Background(), NewEvent("viruses", ActionCreated, 3, "flu", ""))
	_ = w.Write(context.Background(), NewEvent("viruses", ActionDeleted, 3, "", ""))
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("lines = %d", len(lines))
	}
	var got Event
	if err := json.Unmarshal(lines[1], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Action != ActionDeleted || got.RecordID != 3 || got.Collection != "viruses" {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestFileWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	for i := 0; i < 2; i++ {
		fw, err := NewFileWriter(path)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := fw.Write(context.Background(), NewEvent("simulations", ActionUpdated, int64(i+1), "sim", "")); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := fw.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	if n != 2 {
		t.Fatalf("lines = %d, want 2", n)
	}
}

type mockGreptimeClient struct {
	table *table.Table
	calls int
}

func (m *mockGreptimeClient) Write(_ context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	m.calls++
	if len(tables) > 0 {
		m.table = tables[0]
	}
	return &gpb.GreptimeResponse{}, nil
}

func TestGreptimeWriterBuildsRows(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, table: DefaultTable, log: logging.Discard()}
	ev := Event{
		ID:         "e1",
		Timestamp:  time.Unix(0, 0).UTC(),
		Collection: "terrains",
		Action:     ActionCreated,
		RecordID:   7,
		Name:       "WATER",
		RequestID:  "r1",
	}
	if err := w.Write(context.Background(), ev); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m.calls != 1 || m.table == nil {
		t.Fatalf("client not called")
	}
	rows := m.table.GetRows()
	if len(rows.Schema) != 7 {
		t.Fatalf("schema length = %d", len(rows.Schema))
	}
	if rows.Schema[0].SemanticType != gpb.SemanticType_TAG {
		t.Fatalf("collection should be a tag column")
	}
	if rows.Schema[6].SemanticType != gpb.SemanticType_TIMESTAMP {
		t.Fatalf("ts should be the time index")
	}
	vals := rows.Rows[0].Values
	if got := vals[0].GetStringValue(); got != "terrains" {
		t.Fatalf("collection = %s", got)
	}
	if got := vals[2].GetI64Value(); got != 7 {
		t.Fatalf("record_id = %d", got)
	}
	if got := vals[3].GetStringValue(); got != "WATER" {
		t.Fatalf("name = %s", got)
	}
}

func TestGreptimeWriterEmptyBatch(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, table: DefaultTable, log: logging.Discard()}
	if err := w.WriteBatch(context.Background(), nil); err != nil || m.calls != 0 {
		t.Fatalf("err=%v calls=%d", err, m.calls)
	}
}

func TestSplitEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		host string
		port int
		err  bool
	}{
		{"localhost:4001", "localhost", 4001, false},
		{"greptime", "greptime", 0, false},
		{"h:x", "", 0, true},
		{"", "", 0, true},
	}
	for _, c := range cases {
		host, port, err := splitEndpoint(c.in)
		if (err != nil) != c.err || host != c.host || port != c.port {
			t.Errorf("splitEndpoint(%q) = %q, %d, %v", c.in, host, port, err)
		}
	}
}
