package driver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/datazip-inc/resttap/constants"
	"github.com/datazip-inc/resttap/drivers/abstract"
	"github.com/datazip-inc/resttap/pkg/rest"
	"github.com/datazip-inc/resttap/pkg/rest/auth"
	"github.com/datazip-inc/resttap/types"
	"github.com/datazip-inc/resttap/utils/logger"
	"github.com/google/jsonschema-go/jsonschema"
)

var errCheckDone = errors.New("check completed")

// GitLab reads projects, issues, commits, releases and epics from the GitLab
// REST API
type GitLab struct {
	config *Config
	client *http.Client
	auth   auth.Authenticator
}

// GetConfigRef returns a reference to the configuration
func (g *GitLab) GetConfigRef() abstract.Config {
	g.config = &Config{}
	return g.config
}

// Spec returns the configuration specification
func (g *GitLab) Spec() any {
	schema, err := jsonschema.For[Config](nil)
	if err != nil {
		logger.Errorf("failed to generate config schema: %s", err)
		return Config{}
	}
	return schema
}

func (g *GitLab) Type() string {
	return string(constants.GitLab)
}

// Setup validates the config and prepares the token authenticator
func (g *GitLab) Setup(_ context.Context) error {
	if g.config == nil {
		return fmt.Errorf("config not loaded")
	}
	if err := g.config.Validate(); err != nil {
		return fmt.Errorf("failed to validate config: %s", err)
	}

	g.client = rest.NewHTTPClient()
	g.auth = &auth.APIKey{Name: "Private-Token", Value: g.config.AuthToken, Location: auth.InHeader}
	return nil
}

// Check fetches the first record of the first configured project or group
func (g *GitLab) Check(ctx context.Context) error {
	def := findStream("projects")
	if len(g.config.ProjectIDs) == 0 {
		def = findStream("epics")
	}

	stream, err := g.ProduceSchema(ctx, def.name)
	if err != nil {
		return err
	}
	partitions, err := g.Partitions(ctx, stream.Wrap())
	if err != nil {
		return err
	}

	_, err = g.extractor(stream.Wrap(), def).Run(ctx, partitions[0], nil, func(_ types.Record) error {
		return errCheckDone
	})
	if err != nil && !errors.Is(err, errCheckDone) {
		return fmt.Errorf("failed to read %s: %s", stream.ID(), err)
	}
	return nil
}

func (g *GitLab) MaxConnections() int {
	return g.config.MaxThreads
}

func (g *GitLab) MaxRetries() int {
	return g.config.RetryCount
}

// GetStreamNames lists the streams reachable with the configured project and
// group ids
func (g *GitLab) GetStreamNames(_ context.Context) ([]string, error) {
	var names []string
	for _, def := range streamDefs {
		if g.available(&def) {
			names = append(names, types.StreamID(namespace, def.name))
		}
	}
	return names, nil
}

func (g *GitLab) ProduceSchema(_ context.Context, name string) (*types.Stream, error) {
	def := findStream(name)
	if def == nil {
		return nil, fmt.Errorf("unknown stream %s", name)
	}

	stream := types.NewStream(def.name, namespace).
		WithSyncMode(types.FULLREFRESH).
		WithPrimaryKey(def.primaryKeys...).
		WithReplicationKey(def.replicationKey).
		WithSchema(def.schema)
	if def.parent != "" {
		stream.WithParent(types.StreamID(namespace, def.parent))
	}
	return stream, nil
}

func (g *GitLab) Partitions(_ context.Context, stream types.StreamInterface) ([]types.Context, error) {
	def := findStream(stream.Name())
	if def == nil {
		return nil, fmt.Errorf("unknown stream %s", stream.ID())
	}

	var ids []string
	switch def.partitionBy {
	case byProject:
		ids = g.config.ProjectIDs
	case byGroup:
		ids = g.config.GroupIDs
	default:
		return nil, nil
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("stream %s requires %ss in config", stream.ID(), def.partitionBy)
	}

	partitions := make([]types.Context, 0, len(ids))
	for _, id := range ids {
		partitions = append(partitions, types.Context{string(def.partitionBy): id})
	}
	return partitions, nil
}

func (g *GitLab) Extractor(stream types.StreamInterface) (abstract.Runner, error) {
	def := findStream(stream.Name())
	if def == nil {
		return nil, fmt.Errorf("unknown stream %s", stream.ID())
	}
	return g.extractor(stream, def), nil
}

// StartCursor falls back to start_date for incremental streams without state
func (g *GitLab) StartCursor(stream types.StreamInterface) any {
	if g.config.StartDate == "" || stream.Cursor() == "" {
		return nil
	}
	return g.config.StartDate
}

// ChildContext maps an epic onto the partition of its issues
func (g *GitLab) ChildContext(child types.StreamInterface, record types.Record, parent types.Context) (types.Context, error) {
	if child.Name() != "epic_issues" {
		return nil, fmt.Errorf("stream %s has no parent", child.ID())
	}

	iid, found := record.Get("iid")
	if !found || iid == nil {
		return nil, nil
	}
	return parent.Merge(types.Context{"epic_id": iid}), nil
}

func (g *GitLab) available(def *streamDef) bool {
	if def.parent != "" {
		def = findStream(def.parent)
	}
	switch def.partitionBy {
	case byProject:
		return len(g.config.ProjectIDs) > 0
	case byGroup:
		return len(g.config.GroupIDs) > 0
	}
	return true
}

func (g *GitLab) extractor(stream types.StreamInterface, def *streamDef) *rest.Extractor {
	replicationKey := stream.Cursor()
	if replicationKey == "" {
		replicationKey = def.replicationKey
	}

	builder := rest.NewRequestBuilder(g.config.APIURL, def.path)
	if g.config.UserAgent != "" {
		builder.UserAgent = g.config.UserAgent
	}
	builder.Params = map[string]string{"per_page": strconv.Itoa(g.config.PageSize)}
	for k, v := range def.params {
		builder.Params[k] = v
	}
	builder.ReplicationKey = replicationKey
	builder.ReplicationParam = def.replicationParam
	if !def.sortable {
		builder.SortParam = ""
		builder.OrderByParam = ""
	}

	parser := rest.NewResponseParser("$")
	parser.PostProcess = def.postProcess

	return &rest.Extractor{
		StreamID:       stream.ID(),
		Client:         g.client,
		Auth:           g.auth,
		Builder:        builder,
		Parser:         parser,
		Paginator:      &rest.HeaderPaginator{Header: "X-Next-Page"},
		Retry:          g.config.retryConfig(),
		ReplicationKey: replicationKey,
		OnRecordError:  rest.SkipRecord,
	}
}
