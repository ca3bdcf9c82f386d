package driver

import (
	"github.com/datazip-inc/resttap/pkg/rest"
	"github.com/datazip-inc/resttap/types"
)

const namespace = "gitlab"

type partitionKey string

const (
	byProject partitionKey = "project_id"
	byGroup   partitionKey = "group_id"
)

type streamDef struct {
	name        string
	path        string
	params      map[string]string
	primaryKeys []string
	partitionBy partitionKey
	// incremental streams only
	replicationKey   string
	replicationParam string
	// GitLab sorts with order_by and sort on issues and epics only
	sortable    bool
	parent      string
	postProcess rest.PostProcessFunc
	schema      map[string]any
}

var streamDefs = []streamDef{
	{
		name:        "projects",
		path:        "projects/{project_id}",
		params:      map[string]string{"statistics": "1"},
		primaryKeys: []string{"id"},
		partitionBy: byProject,
	},
	{
		name:        "releases",
		path:        "projects/{project_id}/releases",
		primaryKeys: []string{"project_id", "commit_id", "tag_name"},
		partitionBy: byProject,
		postProcess: releaseKeys,
	},
	{
		name:             "issues",
		path:             "projects/{project_id}/issues",
		params:           map[string]string{"scope": "all"},
		primaryKeys:      []string{"id"},
		partitionBy:      byProject,
		replicationKey:   "updated_at",
		replicationParam: "updated_after",
		sortable:         true,
	},
	{
		name:             "commits",
		path:             "projects/{project_id}/repository/commits",
		params:           map[string]string{"with_stats": "true"},
		primaryKeys:      []string{"id"},
		partitionBy:      byProject,
		replicationKey:   "committed_date",
		replicationParam: "since",
	},
	{
		name:             "epics",
		path:             "groups/{group_id}/epics",
		primaryKeys:      []string{"id"},
		partitionBy:      byGroup,
		replicationKey:   "updated_at",
		replicationParam: "updated_after",
		sortable:         true,
		schema:           epicSchema,
	},
	{
		name:        "epic_issues",
		path:        "groups/{group_id}/epics/{epic_id}/issues",
		primaryKeys: []string{"id"},
		parent:      "epics",
	},
}

func findStream(name string) *streamDef {
	if ns, short := types.SplitStreamID(name); ns == namespace {
		name = short
	}
	for idx := range streamDefs {
		if streamDefs[idx].name == name {
			return &streamDefs[idx]
		}
	}
	return nil
}

// releaseKeys lifts the key columns releases do not carry at the top level
func releaseKeys(record types.Record, partition types.Context) (types.Record, error) {
	if projectID, found := partition.Get("project_id"); found {
		record["project_id"] = projectID
	}
	if commitID, found := record.Get("commit.id"); found {
		record["commit_id"] = commitID
	}
	return record, nil
}

func property(kind string, nullable bool) map[string]any {
	if nullable {
		return map[string]any{"type": []any{kind, "null"}}
	}
	return map[string]any{"type": kind}
}

func dateTime() map[string]any {
	return map[string]any{"type": []any{"string", "null"}, "format": "date-time"}
}

var epicSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":          property("integer", false),
		"iid":         property("integer", false),
		"group_id":    property("integer", false),
		"parent_id":   property("integer", true),
		"title":       property("string", true),
		"description": property("string", true),
		"state":       property("string", true),
		"author_id":   property("integer", true),
		"start_date":  dateTime(),
		"end_date":    dateTime(),
		"due_date":    dateTime(),
		"created_at":  dateTime(),
		"updated_at":  dateTime(),
		"labels":      map[string]any{"type": "array", "items": property("string", false)},
		"upvotes":     property("integer", true),
		"downvotes":   property("integer", true),
	},
}
