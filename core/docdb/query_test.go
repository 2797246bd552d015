package docdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQueryPlainFind(t *testing.T) {
	filter := Document{"state": "open"}
	sort := []SortField{{Field: "name", Direction: 1}}

	plan := BuildQuery(filter, nil, nil, sort, 5, 20, false)
	assert.Nil(t, plan.Pipeline, "no joins and no grouping must stay a plain find")
	assert.Equal(t, filter, plan.Filter)
	assert.Equal(t, FindOptions{Sort: sort, Limit: 20, Skip: 5}, plan.Options)
	assert.False(t, plan.Single)
}

func TestBuildQuerySingle(t *testing.T) {
	plan := BuildQuery(Document{"_id": "x"}, nil, nil, nil, 0, 50, true)
	assert.True(t, plan.Single)
	assert.Equal(t, int64(1), plan.Options.Limit, "single-result queries are limited to one")
}

func TestBuildQueryPipelineOrder(t *testing.T) {
	lookups := []Lookup{{From: "user", LocalField: "created_by_id", ForeignField: "_id", As: "created_by"}}
	group := Document{"_id": "$state", "count": Document{"$sum": 1}}
	filter := Document{"created_by.name": "alice"}
	sort := []SortField{{Field: "count", Direction: -1}}

	plan := BuildQuery(filter, lookups, group, sort, 10, 25, false)
	require.Len(t, plan.Pipeline, 7)

	stageName := func(i int) string {
		for name := range plan.Pipeline[i] {
			return name
		}
		return ""
	}
	// joins and grouping precede filtering, so filters may reference
	// joined and grouped fields
	assert.Equal(t, "$lookup", stageName(0))
	assert.Equal(t, "$unwind", stageName(1))
	assert.Equal(t, "$group", stageName(2))
	assert.Equal(t, "$match", stageName(3))
	assert.Equal(t, "$sort", stageName(4))
	assert.Equal(t, "$limit", stageName(5))
	assert.Equal(t, "$skip", stageName(6))

	assert.Equal(t, "$created_by", plan.Pipeline[1]["$unwind"])
	assert.Equal(t, int64(25), plan.Pipeline[5]["$limit"])
	assert.Equal(t, int64(10), plan.Pipeline[6]["$skip"])
}

func TestBuildQueryPipelineSkipsEmptyStages(t *testing.T) {
	lookups := []Lookup{{From: "user", LocalField: "uid", ForeignField: "_id", As: "user"}}

	plan := BuildQuery(Document{}, lookups, nil, nil, 0, 100, false)
	require.Len(t, plan.Pipeline, 3, "no match, no sort and no skip stage")
	assert.Contains(t, plan.Pipeline[2], "$limit")
}

func TestBuildQueryPipelineSingleLimit(t *testing.T) {
	lookups := []Lookup{{From: "user", LocalField: "uid", ForeignField: "_id", As: "user"}}
	plan := BuildQuery(Document{"a": 1}, lookups, nil, nil, 0, 100, true)
	for _, stage := range plan.Pipeline {
		if limit, ok := stage["$limit"]; ok {
			assert.Equal(t, int64(1), limit)
			return
		}
	}
	t.Fatal("pipeline lacks a $limit stage")
}
