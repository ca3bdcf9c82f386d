package rest

import (
	"context"
	"io"
	"net/url"
	"testing"

	"github.com/datazip-inc/resttap/pkg/rest/auth"
	"github.com/datazip-inc/resttap/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestBuilder_Build(t *testing.T) {
	builder := NewRequestBuilder("https://gitlab.example.com/api/v4/", "/projects/{project_id}/issues")
	builder.Headers = map[string]string{"X-Custom": "1"}
	builder.Params = map[string]string{"per_page": "100", "scope": "all"}
	builder.ReplicationKey = "updated_at"
	builder.ReplicationParam = "updated_after"

	partition := types.Context{"project_id": float64(42)}
	cred := &auth.Credential{Headers: map[string]string{"Private-Token": "secret"}, Params: map[string]string{"sig": "abc"}}

	req, err := builder.Build(partition, "3", "2024-01-01T00:00:00Z", cred)
	require.NoError(t, err)

	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "https://gitlab.example.com/api/v4/projects/42/issues", req.URL.Scheme+"://"+req.URL.Host+req.URL.Path)

	query := req.URL.Query()
	assert.Equal(t, "100", query.Get("per_page"))
	assert.Equal(t, "asc", query.Get("sort"))
	assert.Equal(t, "updated_at", query.Get("order_by"))
	assert.Equal(t, "2024-01-01T00:00:00Z", query.Get("updated_after"))
	assert.Equal(t, "3", query.Get("page"))
	assert.Equal(t, "abc", query.Get("sig"))

	assert.Equal(t, "secret", req.Header.Get("Private-Token"))
	assert.Equal(t, "1", req.Header.Get("X-Custom"))
	assert.Equal(t, "resttap/1.0", req.Header.Get("User-Agent"))
	assert.Nil(t, req.Body)
}

func TestRequestBuilder_FirstPageHasNoTokenOrCursor(t *testing.T) {
	builder := NewRequestBuilder("https://api.example.com", "items")
	builder.ReplicationKey = "updated_at"
	builder.ReplicationParam = "since"

	req, err := builder.Build(nil, nil, nil, nil)
	require.NoError(t, err)

	query := req.URL.Query()
	assert.Equal(t, "https://api.example.com/items", req.URL.Scheme+"://"+req.URL.Host+req.URL.Path)
	assert.False(t, query.Has("page"))
	assert.False(t, query.Has("since"))
	assert.Equal(t, "asc", query.Get("sort"), "replication key always requests ascending order")
}

func TestRequestBuilder_SortParamsCanBeDisabled(t *testing.T) {
	builder := NewRequestBuilder("https://api.example.com", "items")
	builder.ReplicationKey = "updated_at"
	builder.SortParam = ""
	builder.OrderByParam = "sort_by"

	req, err := builder.Build(nil, nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, req.URL.Query().Has("sort"))
	assert.Equal(t, "updated_at", req.URL.Query().Get("sort_by"))
}

func TestRequestBuilder_TokenParamOverride(t *testing.T) {
	builder := NewRequestBuilder("https://api.example.com", "items")
	builder.TokenParamFunc = func(token any, params url.Values) {
		params.Set("cursor", token.(string))
		params.Set("direction", "next")
	}

	req, err := builder.Build(nil, "opaque==", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "opaque==", req.URL.Query().Get("cursor"))
	assert.Equal(t, "next", req.URL.Query().Get("direction"))
	assert.False(t, req.URL.Query().Has("page"))

	builder.TokenParamFunc = nil
	builder.TokenParam = "offset"
	req, err = builder.Build(nil, float64(200), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "200", req.URL.Query().Get("offset"))
}

func TestRequestBuilder_PathPlaceholders(t *testing.T) {
	builder := NewRequestBuilder("https://api.example.com", "groups/{group_id}/epics/{epic_iid}/issues")

	req, err := builder.Build(types.Context{"group_id": "my group", "epic_iid": float64(7)}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "/groups/my%20group/epics/7/issues", req.URL.EscapedPath())

	_, err = builder.Build(types.Context{"group_id": "g"}, nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "epic_iid")
}

func TestRequestBuilder_Body(t *testing.T) {
	builder := NewRequestBuilder("https://api.example.com", "search")
	builder.Method = "post"
	builder.BodyFunc = func(partition types.Context, token, cursor any) (any, error) {
		return map[string]any{"tenant": partition["tenant"], "after": cursor, "page": token}, nil
	}

	req, err := builder.Build(types.Context{"tenant": "t1"}, float64(2), "2024-01-01", nil)
	require.NoError(t, err)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"tenant":"t1","after":"2024-01-01","page":2}`, string(req.Body))

	httpReq, err := req.HTTPRequest(context.Background())
	require.NoError(t, err)
	body, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)
	assert.JSONEq(t, string(req.Body), string(body))
}

func TestRequestBuilder_AbsolutePath(t *testing.T) {
	builder := NewRequestBuilder("https://api.example.com", "https://other.example.com/v2/items?limit=5")

	req, err := builder.Build(nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "other.example.com", req.URL.Host)
	assert.Equal(t, "5", req.URL.Query().Get("limit"))
}
