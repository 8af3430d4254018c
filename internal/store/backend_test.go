package store

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()
	id, err := b.NextID(ctx, "terrains")
	if err != nil || id != 1 {
		t.Fatalf("next id = %d, %v", id, err)
	}
	if err := b.Put(ctx, "terrains", Document{ID: id, Payload: []byte(`{"name":"WATER"}`)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := b.Put(ctx, "terrains", Document{ID: id, Payload: []byte(`{"name":"LAKE"}`)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	doc, err := b.Get(ctx, "terrains", id)
	if err != nil || string(doc.Payload) != `{"name":"LAKE"}` {
		t.Fatalf("get = %s, %v", doc.Payload, err)
	}
	if _, err := b.Get(ctx, "viruses", id); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("collections not isolated: %v", err)
	}
	if err := b.Delete(ctx, "terrains", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := b.Delete(ctx, "terrains", id); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("second delete = %v", err)
	}
	next, _ := b.NextID(ctx, "terrains")
	if next != 2 {
		t.Fatalf("ids must not be reused, got %d", next)
	}
	docs, err := b.List(ctx, "terrains")
	if err != nil || len(docs) != 0 {
		t.Fatalf("list = %v, %v", docs, err)
	}
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemoryBackend())
}

func TestSQLiteBackend(t *testing.T) {
	b, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()
	exerciseBackend(t, b)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.db")
	ctx := context.Background()

	b, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	srv := httptest.NewServer(NewServer(Options{Backend: b}).Handler())
	code, _, _ := call(t, http.MethodPost, srv.URL+"/api/v1/viruses/", map[string]any{"name": "measles"})
	srv.Close()
	if code != http.StatusCreated {
		t.Fatalf("create = %d", code)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	docs, err := b.List(ctx, "viruses")
	if err != nil || len(docs) != 1 || docs[0].ID != 1 {
		t.Fatalf("after reopen: %v, %v", docs, err)
	}
	if id, _ := b.NextID(ctx, "viruses"); id != 2 {
		t.Fatalf("sequence not persisted: %d", id)
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLBackend{dialect: "postgres"}
	if got := pg.rebind(`a = ? AND b = ?`); got != `a = $1 AND b = $2` {
		t.Fatalf("postgres rebind = %q", got)
	}
	lite := &SQLBackend{dialect: "sqlite"}
	if got := lite.rebind(`a = ?`); got != `a = ?` {
		t.Fatalf("sqlite rebind = %q", got)
	}
}

type fakeHead struct {
	keys map[string]bool
	err  error
	last string
}

func (f *fakeHead) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.last = *in.Key
	if f.err != nil {
		return nil, f.err
	}
	if f.keys[*in.Key] {
		return &s3.HeadObjectOutput{}, nil
	}
	return nil, &types.NotFound{}
}

func TestS3Assets(t *testing.T) {
	fh := &fakeHead{keys: map[string]bool{"maps/data/mapfiles/a.png": true}}
	a := &S3Assets{client: fh, bucket: "assets", prefix: "maps"}
	ok, err := a.Exists(context.Background(), "data/mapfiles/a.png")
	if err != nil || !ok {
		t.Fatalf("existing key: %v %v", ok, err)
	}
	ok, err = a.Exists(context.Background(), "data/mapfiles/b.png")
	if err != nil || ok {
		t.Fatalf("missing key: %v %v", ok, err)
	}
	if fh.last != "maps/data/mapfiles/b.png" {
		t.Fatalf("key = %q", fh.last)
	}
	fh.err = errors.New("access denied")
	if _, err := a.Exists(context.Background(), "x.png"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDirAssetsStaysInRoot(t *testing.T) {
	d := DirAssets{Root: t.TempDir()}
	ok, err := d.Exists(context.Background(), "../../etc/passwd")
	if err != nil || ok {
		t.Fatalf("escaped root: %v %v", ok, err)
	}
}

func TestS3AssetsAgainstEndpoint(t *testing.T) {
	var heads []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		heads = append(heads, r.URL.Path)
		if r.URL.Path == "/assets/maps/data/mapfiles/a.png" {
			w.Header().Set("Content-Length", "0")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a, err := NewS3Assets(context.Background(), S3Config{
		Bucket:          "assets",
		Endpoint:        srv.URL,
		Prefix:          "maps",
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
	})
	if err != nil {
		t.Fatalf("new s3 assets: %v", err)
	}
	ok, err := a.Exists(context.Background(), "data/mapfiles/a.png")
	if err != nil || !ok {
		t.Fatalf("existing key: %v %v", ok, err)
	}
	ok, err = a.Exists(context.Background(), "data/mapfiles/missing.png")
	if err != nil || ok {
		t.Fatalf("missing key: %v %v", ok, err)
	}
	if len(heads) != 2 {
		t.Fatalf("head requests = %v", heads)
	}
}

func TestNewS3AssetsRequiresBucket(t *testing.T) {
	if _, err := NewS3Assets(context.Background(), S3Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}
