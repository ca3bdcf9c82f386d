package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/datazip-inc/resttap/constants"
	"github.com/datazip-inc/resttap/pkg/rest/auth"
	"github.com/datazip-inc/resttap/types"
	"github.com/goccy/go-json"
)

var placeholder = regexp.MustCompile(`\{([^{}]+)\}`)

// Request is a fully specified HTTP request, built without any I/O.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = r.Header.Clone()
	return req, nil
}

// TokenParamFunc maps a pagination token onto query parameters.
type TokenParamFunc func(token any, params url.Values)

// BodyFunc produces the JSON payload of a request; nil means no body.
type BodyFunc func(partition types.Context, token, cursor any) (any, error)

type RequestBuilder struct {
	BaseURL   string
	Path      string
	Method    string
	UserAgent string
	Headers   map[string]string
	Params    map[string]string

	ReplicationKey string
	// query param receiving the start cursor, e.g. updated_after
	ReplicationParam string
	// empty disables the default ascending sort params
	SortParam    string
	OrderByParam string

	TokenParam     string
	TokenParamFunc TokenParamFunc
	BodyFunc       BodyFunc
}

func NewRequestBuilder(baseURL, path string) *RequestBuilder {
	return &RequestBuilder{
		BaseURL:      baseURL,
		Path:         path,
		Method:       http.MethodGet,
		UserAgent:    constants.DefaultUserAgent,
		SortParam:    constants.DefaultSortParam,
		OrderByParam: constants.DefaultOrderByParam,
		TokenParam:   constants.DefaultTokenParam,
	}
}

// Build assembles the request for one page of a partition.
func (b *RequestBuilder) Build(partition types.Context, token, cursor any, cred *auth.Credential) (*Request, error) {
	path, err := b.resolvePath(partition)
	if err != nil {
		return nil, err
	}

	target, err := url.Parse(joinURL(b.BaseURL, path))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %s", err)
	}

	query := target.Query()
	for k, v := range b.Params {
		query.Set(k, v)
	}
	if b.ReplicationKey != "" {
		if b.SortParam != "" {
			query.Set(b.SortParam, "asc")
		}
		if b.OrderByParam != "" {
			query.Set(b.OrderByParam, b.ReplicationKey)
		}
		if cursor != nil && b.ReplicationParam != "" {
			query.Set(b.ReplicationParam, types.FormatValue(cursor))
		}
	}
	if token != nil {
		if b.TokenParamFunc != nil {
			b.TokenParamFunc(token, query)
		} else {
			query.Set(b.TokenParam, types.FormatValue(token))
		}
	}

	header := http.Header{}
	if b.UserAgent != "" {
		header.Set("User-Agent", b.UserAgent)
	}
	header.Set("Accept", "application/json")
	for k, v := range b.Headers {
		header.Set(k, v)
	}

	if cred != nil {
		for k, v := range cred.Params {
			query.Set(k, v)
		}
		for k, v := range cred.Headers {
			header.Set(k, v)
		}
	}
	target.RawQuery = query.Encode()

	method := b.Method
	if method == "" {
		method = http.MethodGet
	}
	request := &Request{Method: strings.ToUpper(method), URL: target, Header: header}

	if b.BodyFunc != nil {
		payload, err := b.BodyFunc(partition, token, cursor)
		if err != nil {
			return nil, fmt.Errorf("failed to build request body: %s", err)
		}
		if payload != nil {
			request.Body, err = json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request body: %s", err)
			}
			header.Set("Content-Type", "application/json")
		}
	}

	return request, nil
}

func (b *RequestBuilder) resolvePath(partition types.Context) (string, error) {
	var missing []string
	path := placeholder.ReplaceAllStringFunc(b.Path, func(match string) string {
		name := match[1 : len(match)-1]
		value, found := partition.String(name)
		if !found {
			missing = append(missing, name)
			return match
		}
		return url.PathEscape(value)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("path %s references %v missing from partition context", b.Path, missing)
	}
	return path, nil
}

func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
