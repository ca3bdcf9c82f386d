package rest

import (
	"errors"
	"testing"

	"github.com/datazip-inc/resttap/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, parser *ResponseParser, body string) ([]types.Record, []error) {
	t.Helper()
	seq, err := parser.Parse([]byte(body), nil)
	require.NoError(t, err)

	var records []types.Record
	var errs []error
	for record, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, record)
	}
	return records, errs
}

func TestToGJSONPath(t *testing.T) {
	tests := map[string]string{
		"":                       "@this",
		"$":                      "@this",
		"$[*]":                   "@this",
		"$.items[*]":             "items",
		"$.items":                "items",
		"$.data.results[*]":      "data.results",
		"$.data[*].records[*]":   "data.#.records",
		"$.pages[0].items[*]":    "pages.0.items",
		"data.items":             "data.items",
		"items.#(active==true)#": "items.#(active==true)#",
	}
	for in, want := range tests {
		assert.Equal(t, want, ToGJSONPath(in), "path %q", in)
	}
}

func TestParse_DocumentOrder(t *testing.T) {
	records, errs := collect(t, NewResponseParser("$.items[*]"), `{"items":[{"id":1},{"id":2},{"id":3}],"next_page":"abc"}`)
	require.Empty(t, errs)
	assert.Equal(t, []types.Record{{"id": float64(1)}, {"id": float64(2)}, {"id": float64(3)}}, records)
}

func TestParse_ZeroMatchesIsEmpty(t *testing.T) {
	for _, body := range []string{`{"data":[]}`, `{"items":null}`, `{}`, `[]`} {
		records, errs := collect(t, NewResponseParser("$.items[*]"), body)
		assert.Empty(t, records, body)
		assert.Empty(t, errs, body)
	}
}

func TestParse_InvalidBody(t *testing.T) {
	_, err := NewResponseParser("$.items[*]").Parse([]byte(`{"items":[`), nil)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "items", parseErr.Path)
	assert.True(t, IsRetryable(err))
}

func TestParse_RootArrayAndSingleObject(t *testing.T) {
	records, _ := collect(t, NewResponseParser("$[*]"), `[{"id":"a"},{"id":"b"}]`)
	assert.Len(t, records, 2)

	records, _ = collect(t, NewResponseParser("$.project"), `{"project":{"id":9,"name":"x"}}`)
	require.Len(t, records, 1)
	assert.Equal(t, "x", records[0]["name"])
}

func TestParse_NestedArraysFlattenOneLevel(t *testing.T) {
	body := `{"data":[{"records":[{"id":1},{"id":2}]},{"records":[{"id":3}]}]}`
	records, errs := collect(t, NewResponseParser("$.data[*].records[*]"), body)
	require.Empty(t, errs)
	require.Len(t, records, 3)
	assert.Equal(t, float64(3), records[2]["id"])
}

func TestParse_NonObjectIsRecordError(t *testing.T) {
	records, errs := collect(t, NewResponseParser("items"), `{"items":[{"id":1},5,"x",{"id":2}]}`)
	assert.Len(t, records, 2)
	require.Len(t, errs, 2)

	var recordErr *RecordError
	require.ErrorAs(t, errs[0], &recordErr)
	assert.Equal(t, 1, recordErr.Index)
}

func TestParse_PostProcess(t *testing.T) {
	parser := NewResponseParser("items")
	parser.PostProcess = func(record types.Record, partition types.Context) (types.Record, error) {
		switch record["id"] {
		case float64(2):
			return nil, nil
		case float64(3):
			return nil, errors.New("bad record")
		}
		record["project_id"] = partition["project_id"]
		return record, nil
	}

	seq, err := parser.Parse([]byte(`{"items":[{"id":1},{"id":2},{"id":3},{"id":4}]}`), types.Context{"project_id": "p"})
	require.NoError(t, err)

	var ids []any
	var failures int
	for record, err := range seq {
		if err != nil {
			failures++
			continue
		}
		assert.Equal(t, "p", record["project_id"])
		ids = append(ids, record["id"])
	}
	assert.Equal(t, []any{float64(1), float64(4)}, ids)
	assert.Equal(t, 1, failures)
}

func TestParse_SchemaValidation(t *testing.T) {
	parser, err := NewResponseParser("items").WithSchema(map[string]any{
		"type":     "object",
		"required": []string{"id"},
		"properties": map[string]any{
			"id": map[string]any{"type": "integer"},
		},
	})
	require.NoError(t, err)

	records, errs := collect(t, parser, `{"items":[{"id":1},{"name":"missing id"},{"id":"str"}]}`)
	assert.Len(t, records, 1)
	assert.Len(t, errs, 2)

	_, err = NewResponseParser("items").WithSchema(map[string]any{"type": 12})
	assert.Error(t, err)
}

func TestParse_SequenceIsRestartable(t *testing.T) {
	seq, err := NewResponseParser("items").Parse([]byte(`{"items":[{"id":1},{"id":2}]}`), nil)
	require.NoError(t, err)

	first, second := 0, 0
	for range seq {
		first++
	}
	for range seq {
		second++
	}
	assert.Equal(t, 2, first)
	assert.Equal(t, first, second)

	// early break stops the walk
	seen := 0
	for range seq {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}
