package driver

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/datazip-inc/resttap/destination"
	"github.com/datazip-inc/resttap/drivers/abstract"
	"github.com/datazip-inc/resttap/pkg/rest"
	"github.com/datazip-inc/resttap/pkg/rest/auth"
	"github.com/datazip-inc/resttap/state"
	"github.com/datazip-inc/resttap/types"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/datazip-inc/resttap/destination/local"
)

// fixtureServer serves two pages of items and one page of notes per item
type fixtureServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []*http.Request
}

func newFixtureServer(t *testing.T) *fixtureServer {
	t.Helper()
	fixture := &fixtureServer{}
	fixture.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fixture.mu.Lock()
		fixture.requests = append(fixture.requests, r.Clone(context.Background()))
		fixture.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/items":
			if r.URL.Query().Get("page") == "2" {
				fmt.Fprint(w, `{"items":[{"id":3,"updated_at":"2024-01-03T00:00:00Z"}],"next_page":null}`)
				return
			}
			fmt.Fprint(w, `{"items":[{"id":1,"updated_at":"2024-01-01T00:00:00Z"},{"id":2,"updated_at":"2024-01-02T00:00:00Z"}],"next_page":2}`)
		case "/items/1/notes":
			fmt.Fprint(w, `{"notes":[{"id":10,"body":"first"},{"id":11,"body":"second"}]}`)
		case "/items/2/notes", "/items/3/notes":
			fmt.Fprint(w, `{"notes":[]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(fixture.Close)
	return fixture
}

func (f *fixtureServer) requestsTo(path string) []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*http.Request
	for _, r := range f.requests {
		if r.URL.Path == path {
			matched = append(matched, r)
		}
	}
	return matched
}

func authConfig() auth.Config {
	return auth.Config{Type: auth.TypeBearer, Token: "secret"}
}

func newGeneric(t *testing.T, baseURL string) *Generic {
	t.Helper()
	g := &Generic{}
	config, ok := g.GetConfigRef().(*Config)
	require.True(t, ok)

	*config = Config{
		APIURL:    baseURL,
		Auth:      authConfig(),
		UserAgent: "resttap-test",
		Retry:     RetryConfig{MaxAttempts: 2, InitialInterval: 0.001, MaxInterval: 0.005},
		StartDate: "2023-12-31T00:00:00Z",
		Streams: []StreamConfig{
			{
				Name:             "items",
				Namespace:        "api",
				Path:             "items",
				RecordsPath:      "$.items[*]",
				PrimaryKeys:      []string{"id"},
				ReplicationKey:   "updated_at",
				ReplicationParam: "updated_after",
				Pagination:       Pagination{Type: PaginationBodyPath, Path: "$.next_page"},
			},
			{
				Name:         "notes",
				Namespace:    "api",
				Path:         "items/{item_id}/notes",
				RecordsPath:  "notes",
				PrimaryKeys:  []string{"id"},
				Parent:       "items",
				ChildContext: map[string]string{"item_id": "id"},
			},
		},
	}
	require.NoError(t, g.Setup(context.Background()))
	return g
}

func TestGeneric_ProduceSchema(t *testing.T) {
	g := newGeneric(t, "https://api.example.com")

	names, err := g.GetStreamNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"api.items", "api.notes"}, names)

	items, err := g.ProduceSchema(context.Background(), "api.items")
	require.NoError(t, err)
	assert.True(t, items.SupportedSyncModes.Exists(types.INCREMENTAL))
	assert.Equal(t, "updated_at", items.ReplicationKey)
	assert.Equal(t, []string{"id"}, items.SourceDefinedPrimaryKey.Array())

	notes, err := g.ProduceSchema(context.Background(), "notes")
	require.NoError(t, err)
	assert.Equal(t, "api.items", notes.Parent)
	assert.False(t, notes.SupportedSyncModes.Exists(types.INCREMENTAL))

	_, err = g.ProduceSchema(context.Background(), "api.unknown")
	assert.Error(t, err)
}

func TestGeneric_Spec(t *testing.T) {
	g := &Generic{}
	data, err := json.Marshal(g.Spec())
	require.NoError(t, err)
	assert.Contains(t, string(data), "api_url")
	assert.Contains(t, string(data), "child_context")
}

func TestGeneric_Extractor(t *testing.T) {
	server := newFixtureServer(t)
	g := newGeneric(t, server.URL)

	items, err := g.ProduceSchema(context.Background(), "api.items")
	require.NoError(t, err)
	items.SyncMode = types.INCREMENTAL
	stream := items.Wrap()

	runner, err := g.Extractor(stream)
	require.NoError(t, err)

	var ids []any
	result, err := runner.Run(context.Background(), types.Context{}, g.StartCursor(stream), func(record types.Record) error {
		ids = append(ids, record["id"])
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []any{1.0, 2.0, 3.0}, ids)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, "2024-01-03T00:00:00Z", result.MaxCursor)

	requests := server.requestsTo("/items")
	require.Len(t, requests, 2)
	query := requests[0].URL.Query()
	assert.Equal(t, "2023-12-31T00:00:00Z", query.Get("updated_after"))
	assert.Equal(t, "updated_at", query.Get("order_by"))
	assert.Equal(t, "asc", query.Get("sort"))
	assert.Empty(t, query.Get("page"))
	assert.Equal(t, "2", requests[1].URL.Query().Get("page"))
	assert.Equal(t, "resttap-test", requests[0].Header.Get("User-Agent"))
}

func TestGeneric_ChildContext(t *testing.T) {
	g := newGeneric(t, "https://api.example.com")
	notes, err := g.ProduceSchema(context.Background(), "api.notes")
	require.NoError(t, err)

	derived, err := g.ChildContext(notes.Wrap(), types.Record{"id": 7.0}, types.Context{"tenant": "a"})
	require.NoError(t, err)
	assert.Equal(t, types.Context{"tenant": "a", "item_id": 7.0}, derived)

	derived, err = g.ChildContext(notes.Wrap(), types.Record{"title": "no id"}, types.Context{})
	require.NoError(t, err)
	assert.Nil(t, derived, "records without the field produce no partition")
}

func TestGeneric_Partitions(t *testing.T) {
	g := newGeneric(t, "https://api.example.com")
	g.config.Streams[0].Partitions = []types.Context{{"project_id": 1.0}, {"project_id": 2.0}}

	partitions, err := g.Partitions(context.Background(), types.NewStream("items", "api").Wrap())
	require.NoError(t, err)
	require.Len(t, partitions, 2)

	partitions[0]["project_id"] = 9.0
	assert.Equal(t, 1.0, g.config.Streams[0].Partitions[0]["project_id"], "partitions are copies")
}

func TestGeneric_Check(t *testing.T) {
	server := newFixtureServer(t)

	g := newGeneric(t, server.URL)
	require.NoError(t, g.Check(context.Background()))
	assert.Len(t, server.requestsTo("/items"), 1, "check stops after the first record")

	denied := newGeneric(t, server.URL)
	denied.config.Auth.Token = "wrong"
	err := denied.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.items")
}

func TestGeneric_SyncToLocal(t *testing.T) {
	server := newFixtureServer(t)
	g := newGeneric(t, server.URL)
	base := t.TempDir()

	driver := abstract.NewAbstractDriver(context.Background(), g)
	store, err := state.NewFileStore(filepath.Join(base, "state.json"))
	require.NoError(t, err)
	driver.SetupState(store)

	streams, err := driver.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, streams, 2)
	configured := make([]types.StreamInterface, 0, len(streams))
	for _, stream := range streams {
		configured = append(configured, stream.Wrap())
	}

	pool, err := destination.NewWriter(context.Background(), &destination.WriterConfig{
		Type:         "local",
		WriterConfig: map[string]any{"local_path": filepath.Join(base, "out")},
	})
	require.NoError(t, err)

	report, err := driver.Read(context.Background(), pool, configured...)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Streams["api.items"].Records)
	assert.Equal(t, 2, report.Streams["api.notes"].Records)
	assert.Equal(t, 3, report.Streams["api.notes"].Partitions)

	assert.Len(t, readLines(t, filepath.Join(base, "out", "api", "items")), 3)
	assert.Len(t, readLines(t, filepath.Join(base, "out", "api", "notes")), 2)

	cursor, err := store.GetCursor(context.Background(), "api.items", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03T00:00:00Z", cursor)

	// the next run resumes from the persisted cursor
	_, err = driver.Read(context.Background(), pool, configured[0])
	require.NoError(t, err)
	requests := server.requestsTo("/items")
	assert.Equal(t, "2024-01-03T00:00:00Z", requests[len(requests)-2].URL.Query().Get("updated_after"))
}

func TestGeneric_RecordValidation(t *testing.T) {
	server := newFixtureServer(t)
	g := newGeneric(t, server.URL)
	g.config.ValidateRecords = true
	g.config.Streams[0].OnRecordError = rest.FailRecord

	items, err := g.ProduceSchema(context.Background(), "api.items")
	require.NoError(t, err)
	items.Schema = map[string]any{
		"type":       "object",
		"properties": map[string]any{"id": map[string]any{"type": "string"}},
	}

	runner, err := g.Extractor(items.Wrap())
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), types.Context{}, nil, func(_ types.Record) error { return nil })
	require.Error(t, err)

	var recordErr *rest.RecordError
	assert.ErrorAs(t, err, &recordErr)
}

func readLines(t *testing.T, dir string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	require.NoError(t, err)

	var lines []string
	for _, path := range files {
		file, err := os.Open(path)
		require.NoError(t, err)
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		require.NoError(t, scanner.Err())
		file.Close()
	}
	return lines
}
