package rest

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/tidwall/gjson"
)

// Response is one fetched page.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Request    *Request
	// records parsed from Body, set before the paginator runs
	RecordCount int
}

// Paginator derives the next page token from a response. A nil token ends
// pagination.
type Paginator interface {
	NextToken(resp *Response, previous any) (any, error)
}

// BodyPathPaginator reads the token from the response body, e.g. "$.next_page".
type BodyPathPaginator struct {
	path string
}

func NewBodyPathPaginator(path string) *BodyPathPaginator {
	return &BodyPathPaginator{path: ToGJSONPath(path)}
}

func (p *BodyPathPaginator) NextToken(resp *Response, _ any) (any, error) {
	result := gjson.GetBytes(resp.Body, p.path)
	if result.IsArray() {
		// first matched value
		result = result.Get("0")
	}
	switch {
	case !result.Exists(), result.Type == gjson.Null:
		return nil, nil
	case result.Type == gjson.String && result.Str == "":
		return nil, nil
	case result.Type == gjson.False:
		return nil, nil
	}
	return result.Value(), nil
}

// HeaderPaginator reads the token from a response header such as X-Next-Page.
type HeaderPaginator struct {
	Header string
}

func (p *HeaderPaginator) NextToken(resp *Response, _ any) (any, error) {
	value := resp.Header.Get(p.Header)
	if value == "" {
		return nil, nil
	}
	return value, nil
}

// PageNumberPaginator counts pages while pages keep returning records.
type PageNumberPaginator struct {
	StartPage int
	// a shorter page ends pagination; zero only stops on an empty page
	PageSize       int
	TotalPagesPath string
}

func (p *PageNumberPaginator) NextToken(resp *Response, previous any) (any, error) {
	current := p.StartPage
	if current == 0 {
		current = 1
	}
	if previous != nil {
		page, err := toInt(previous)
		if err != nil {
			return nil, err
		}
		current = page
	}

	if resp.RecordCount == 0 || (p.PageSize > 0 && resp.RecordCount < p.PageSize) {
		return nil, nil
	}
	if p.TotalPagesPath != "" {
		total := gjson.GetBytes(resp.Body, ToGJSONPath(p.TotalPagesPath))
		if total.Exists() && current >= int(total.Int()) {
			return nil, nil
		}
	}
	return current + 1, nil
}

// OffsetPaginator advances an offset by Limit while full pages come back.
type OffsetPaginator struct {
	Limit int
}

func (p *OffsetPaginator) NextToken(resp *Response, previous any) (any, error) {
	if p.Limit <= 0 || resp.RecordCount < p.Limit {
		return nil, nil
	}
	offset := 0
	if previous != nil {
		var err error
		if offset, err = toInt(previous); err != nil {
			return nil, err
		}
	}
	return offset + p.Limit, nil
}

type SinglePagePaginator struct{}

func (SinglePagePaginator) NextToken(_ *Response, _ any) (any, error) {
	return nil, nil
}

func toInt(token any) (int, error) {
	switch v := token.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("unexpected page token %v of type %T", token, token)
	}
}
