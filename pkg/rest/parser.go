package rest

import (
	"fmt"
	"iter"
	"regexp"
	"strings"

	"github.com/datazip-inc/resttap/types"
	"github.com/datazip-inc/resttap/utils"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tidwall/gjson"
)

var arrayIndex = regexp.MustCompile(`\[(\d+)\]`)

// ToGJSONPath converts the JSONPath subset used in stream configs ($.items[*],
// $.data.results[*], $[*], $) into gjson syntax. Anything not starting with
// "$" is taken as a gjson path already.
func ToGJSONPath(path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "$") {
		if path == "" {
			return "@this"
		}
		return path
	}

	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	// trailing wildcard selects the array itself; records are its elements
	path = strings.TrimSuffix(path, "[*]")
	path = strings.ReplaceAll(path, "[*].", ".#.")
	path = strings.ReplaceAll(path, "[*]", ".#")
	path = arrayIndex.ReplaceAllString(path, ".$1")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}
	return path
}

// PostProcessFunc transforms one record before it is yielded.
type PostProcessFunc func(record types.Record, partition types.Context) (types.Record, error)

type ResponseParser struct {
	path        string
	PostProcess PostProcessFunc
	schema      *jsonschema.Schema
}

func NewResponseParser(recordsPath string) *ResponseParser {
	return &ResponseParser{path: ToGJSONPath(recordsPath)}
}

// WithSchema validates every record against a JSON schema.
func (p *ResponseParser) WithSchema(schema map[string]any) (*ResponseParser, error) {
	if len(schema) == 0 {
		return p, nil
	}

	// normalize numbers and nested types the way decoded JSON looks
	var doc any
	if err := utils.Unmarshal(schema, &doc); err != nil {
		return nil, fmt.Errorf("invalid record schema: %s", err)
	}

	const location = "mem://record-schema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(location, doc); err != nil {
		return nil, fmt.Errorf("failed to add record schema: %s", err)
	}
	compiled, err := compiler.Compile(location)
	if err != nil {
		return nil, fmt.Errorf("failed to compile record schema: %s", err)
	}
	p.schema = compiled
	return p, nil
}

// Parse returns the records selected by the parser path in document order.
// The body must be valid JSON; the returned sequence may be ranged over more
// than once and yields a *RecordError for every record that fails.
func (p *ResponseParser) Parse(body []byte, partition types.Context) (iter.Seq2[types.Record, error], error) {
	if !gjson.ValidBytes(body) {
		return nil, &ParseError{Path: p.path, Err: fmt.Errorf("response body is not valid JSON")}
	}

	result := gjson.GetBytes(body, p.path)
	return func(yield func(types.Record, error) bool) {
		if !result.Exists() || result.Type == gjson.Null {
			return
		}
		if !result.IsArray() {
			p.yieldRecord(0, result, partition, yield)
			return
		}

		idx := 0
		result.ForEach(func(_, elem gjson.Result) bool {
			// nested arrays (e.g. from a .# path) are flattened one level
			if elem.IsArray() {
				keep := true
				elem.ForEach(func(_, inner gjson.Result) bool {
					keep = p.yieldRecord(idx, inner, partition, yield)
					idx++
					return keep
				})
				return keep
			}
			keep := p.yieldRecord(idx, elem, partition, yield)
			idx++
			return keep
		})
	}, nil
}

func (p *ResponseParser) yieldRecord(idx int, elem gjson.Result, partition types.Context, yield func(types.Record, error) bool) bool {
	if !elem.IsObject() {
		return yield(nil, &RecordError{Index: idx, Err: fmt.Errorf("expected object, got %s", elem.Type)})
	}

	value, ok := elem.Value().(map[string]any)
	if !ok {
		return yield(nil, &RecordError{Index: idx, Err: fmt.Errorf("failed to decode record")})
	}
	record := types.Record(value)

	if p.PostProcess != nil {
		processed, err := p.PostProcess(record, partition)
		if err != nil {
			return yield(nil, &RecordError{Index: idx, Err: err})
		}
		if processed == nil {
			// dropped by post processing
			return true
		}
		record = processed
	}

	if p.schema != nil {
		if err := p.schema.Validate(map[string]any(record)); err != nil {
			return yield(nil, &RecordError{Index: idx, Err: err})
		}
	}

	return yield(record, nil)
}
