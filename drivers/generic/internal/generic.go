package driver

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"

	"github.com/datazip-inc/resttap/constants"
	"github.com/datazip-inc/resttap/drivers/abstract"
	"github.com/datazip-inc/resttap/pkg/rest"
	"github.com/datazip-inc/resttap/pkg/rest/auth"
	"github.com/datazip-inc/resttap/types"
	"github.com/datazip-inc/resttap/utils/logger"
	"github.com/google/jsonschema-go/jsonschema"
)

var errCheckDone = errors.New("check completed")

// Generic extracts the streams declared in its config
type Generic struct {
	config *Config
	client *http.Client
	// set when auth.shared is enabled
	shared auth.Authenticator
}

// GetConfigRef returns a reference to the configuration
func (g *Generic) GetConfigRef() abstract.Config {
	g.config = &Config{}
	return g.config
}

// Spec returns the configuration specification
func (g *Generic) Spec() any {
	schema, err := jsonschema.For[Config](nil)
	if err != nil {
		logger.Errorf("failed to generate config schema: %s", err)
		return Config{}
	}
	return schema
}

func (g *Generic) Type() string {
	return string(constants.Generic)
}

// Setup validates the config and prepares the http client
func (g *Generic) Setup(_ context.Context) error {
	if g.config == nil {
		return fmt.Errorf("config not loaded")
	}
	if err := g.config.Validate(); err != nil {
		return fmt.Errorf("failed to validate config: %s", err)
	}

	g.client = rest.NewHTTPClient()
	if g.config.Auth.Shared {
		authenticator, err := auth.New(g.config.Auth, g.client)
		if err != nil {
			return fmt.Errorf("failed to build authenticator: %s", err)
		}
		g.shared = authenticator
	}
	return nil
}

// Check authenticates and fetches the first page of the first top level stream
func (g *Generic) Check(ctx context.Context) error {
	var root *StreamConfig
	for idx := range g.config.Streams {
		if g.config.Streams[idx].Parent == "" {
			root = &g.config.Streams[idx]
			break
		}
	}
	if root == nil {
		return fmt.Errorf("no top level stream to check")
	}

	stream, err := g.ProduceSchema(ctx, root.ID())
	if err != nil {
		return err
	}
	extractor, err := g.extractor(stream.Wrap(), root)
	if err != nil {
		return err
	}

	partition := types.Context{}
	if len(root.Partitions) > 0 {
		partition = root.Partitions[0]
	}
	_, err = extractor.Run(ctx, partition, nil, func(_ types.Record) error {
		return errCheckDone
	})
	if err != nil && !errors.Is(err, errCheckDone) {
		return fmt.Errorf("failed to fetch stream %s: %s", root.ID(), err)
	}
	return nil
}

func (g *Generic) MaxConnections() int {
	return g.config.MaxConnections
}

func (g *Generic) MaxRetries() int {
	return g.config.MaxRetries
}

func (g *Generic) GetStreamNames(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(g.config.Streams))
	for idx := range g.config.Streams {
		names = append(names, g.config.Streams[idx].ID())
	}
	return names, nil
}

func (g *Generic) ProduceSchema(_ context.Context, name string) (*types.Stream, error) {
	sc := g.config.stream(name)
	if sc == nil {
		return nil, fmt.Errorf("stream %s not found in config", name)
	}

	stream := types.NewStream(sc.Name, sc.Namespace).
		WithSyncMode(types.FULLREFRESH).
		WithPrimaryKey(sc.PrimaryKeys...).
		WithReplicationKey(sc.ReplicationKey).
		WithSchema(sc.Schema)
	if sc.Parent != "" {
		parent := g.config.stream(sc.Parent)
		stream.WithParent(parent.ID())
	}
	return stream, nil
}

func (g *Generic) Partitions(_ context.Context, stream types.StreamInterface) ([]types.Context, error) {
	sc := g.config.stream(stream.ID())
	if sc == nil {
		return nil, fmt.Errorf("stream %s not found in config", stream.ID())
	}

	partitions := make([]types.Context, 0, len(sc.Partitions))
	for _, partition := range sc.Partitions {
		partitions = append(partitions, maps.Clone(partition))
	}
	return partitions, nil
}

func (g *Generic) Extractor(stream types.StreamInterface) (abstract.Runner, error) {
	sc := g.config.stream(stream.ID())
	if sc == nil {
		return nil, fmt.Errorf("stream %s not found in config", stream.ID())
	}
	return g.extractor(stream, sc)
}

// StartCursor is the configured start_date for incremental streams
func (g *Generic) StartCursor(stream types.StreamInterface) any {
	if g.config.StartDate == "" || stream.Cursor() == "" {
		return nil
	}
	return g.config.StartDate
}

// ChildContext maps parent record fields onto the child partition. Records
// missing one of the fields do not produce a partition.
func (g *Generic) ChildContext(child types.StreamInterface, record types.Record, parent types.Context) (types.Context, error) {
	sc := g.config.stream(child.ID())
	if sc == nil {
		return nil, fmt.Errorf("stream %s not found in config", child.ID())
	}

	derived := make(types.Context, len(sc.ChildContext))
	for key, field := range sc.ChildContext {
		value, found := record.Get(field)
		if !found || value == nil {
			logger.Debugf("stream %s: parent record has no %s, skipping", child.ID(), field)
			return nil, nil
		}
		derived[key] = value
	}
	return parent.Merge(derived), nil
}

func (g *Generic) extractor(stream types.StreamInterface, sc *StreamConfig) (*rest.Extractor, error) {
	authenticator := g.shared
	if authenticator == nil {
		var err error
		if authenticator, err = auth.New(g.config.Auth, g.client); err != nil {
			return nil, fmt.Errorf("failed to build authenticator: %s", err)
		}
	}

	replicationKey := stream.Cursor()
	if replicationKey == "" {
		replicationKey = sc.ReplicationKey
	}

	builder := rest.NewRequestBuilder(g.config.APIURL, sc.Path)
	if sc.Method != "" {
		builder.Method = sc.Method
	}
	if g.config.UserAgent != "" {
		builder.UserAgent = g.config.UserAgent
	}
	builder.Headers = make(map[string]string, len(g.config.Headers)+len(sc.Headers))
	maps.Copy(builder.Headers, g.config.Headers)
	maps.Copy(builder.Headers, sc.Headers)
	builder.Params = maps.Clone(sc.Params)
	if builder.Params == nil {
		builder.Params = make(map[string]string)
	}
	builder.ReplicationKey = replicationKey
	builder.ReplicationParam = sc.ReplicationParam
	if sc.SortParam != "" {
		builder.SortParam = sc.SortParam
	}
	if sc.OrderByParam != "" {
		builder.OrderByParam = sc.OrderByParam
	}

	paginator := configurePagination(builder, sc.Pagination)

	parser := rest.NewResponseParser(sc.RecordsPath)
	if g.config.ValidateRecords {
		var err error
		if parser, err = parser.WithSchema(stream.Schema()); err != nil {
			return nil, fmt.Errorf("stream %s: %s", stream.ID(), err)
		}
	}

	onRecordError := sc.OnRecordError
	if onRecordError == "" {
		onRecordError = rest.SkipRecord
	}

	return &rest.Extractor{
		StreamID:       stream.ID(),
		Client:         g.client,
		Auth:           authenticator,
		Builder:        builder,
		Parser:         parser,
		Paginator:      paginator,
		Retry:          g.config.retryConfig(),
		ReplicationKey: replicationKey,
		MaxPages:       sc.Pagination.MaxPages,
		OnRecordError:  onRecordError,
	}, nil
}

// configurePagination sets the token and limit params on builder and returns
// the matching paginator
func configurePagination(builder *rest.RequestBuilder, pagination Pagination) rest.Paginator {
	if pagination.Param != "" {
		builder.TokenParam = pagination.Param
	}
	if pagination.LimitParam != "" && pagination.Limit > 0 {
		builder.Params[pagination.LimitParam] = fmt.Sprint(pagination.Limit)
	}

	switch pagination.Type {
	case PaginationBodyPath:
		return rest.NewBodyPathPaginator(pagination.Path)
	case PaginationHeader:
		header := pagination.Header
		if header == "" {
			header = "X-Next-Page"
		}
		return &rest.HeaderPaginator{Header: header}
	case PaginationPage:
		return &rest.PageNumberPaginator{StartPage: 1, PageSize: pagination.Limit, TotalPagesPath: pagination.TotalPagesPath}
	case PaginationOffset:
		if pagination.Param == "" {
			builder.TokenParam = "offset"
		}
		return &rest.OffsetPaginator{Limit: pagination.Limit}
	default:
		return rest.SinglePagePaginator{}
	}
}
