package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"epiconsole/internal/logging"
)

// DefaultTable receives mutation events.
const DefaultTable = "entity_mutations"

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter stores events as rows of a GreptimeDB table.
type GreptimeDBWriter struct {
	client greptimeClient
	table  string
	log    *slog.Logger
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port") and
// writes into database.
func NewGreptimeDBWriter(endpoint, database string, log *slog.Logger) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithDatabase(database)
	if port != 0 {
		cfg = cfg.WithPort(port)
	}
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptimedb client: %w", err)
	}
	if log == nil {
		log = logging.Discard()
	}
	return &GreptimeDBWriter{client: client, table: DefaultTable, log: log}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	if endpoint == "" {
		return "", 0, fmt.Errorf("greptimedb endpoint is empty")
	}
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// no port given
		return endpoint, 0, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("greptimedb endpoint %q: bad port", endpoint)
	}
	return host, port, nil
}

// Write inserts one event.
func (w *GreptimeDBWriter) Write(ctx context.Context, ev Event) error {
	return w.WriteBatch(ctx, []Event{ev})
}

// WriteBatch inserts events in one request.
func (w *GreptimeDBWriter) WriteBatch(ctx context.Context, evs []Event) error {
	if len(evs) == 0 {
		return nil
	}
	tbl, err := w.buildTable(evs)
	if err != nil {
		return err
	}
	if _, err := w.client.Write(ctx, tbl); err != nil {
		w.log.Warn("greptimedb write failed", "table", w.table, "err", err)
		return err
	}
	w.log.Debug("greptimedb wrote rows", "table", w.table, "rows", len(evs))
	return nil
}

func (w *GreptimeDBWriter) buildTable(evs []Event) (*table.Table, error) {
	tbl, err := table.New(w.table)
	if err != nil {
		return nil, err
	}
	for _, col := range []struct {
		name string
		tag  bool
		typ  types.ColumnType
	}{
		{"collection", true, types.STRING},
		{"action", true, types.STRING},
		{"record_id", false, types.INT64},
		{"name", false, types.STRING},
		{"request_id", false, types.STRING},
		{"event_id", false, types.STRING},
	} {
		if col.tag {
			err = tbl.AddTagColumn(col.name, col.typ)
		} else {
			err = tbl.AddFieldColumn(col.name, col.typ)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	for _, ev := range evs {
		if err := tbl.AddRow(ev.Collection, string(ev.Action), ev.RecordID, ev.Name, ev.RequestID, ev.ID, ev.Timestamp); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}
