package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Key(t *testing.T) {
	assert.Equal(t, "", Context(nil).Key())
	assert.Equal(t, "", Context{}.Key())

	a := Context{"b": 2, "a": "x"}
	b := Context{"a": "x", "b": 2}
	assert.Equal(t, `{"a":"x","b":2}`, a.Key())
	assert.Equal(t, a.Key(), b.Key(), "key must not depend on insertion order")
}

func TestContext_Hash(t *testing.T) {
	a := Context{"group_id": "g", "epic_id": float64(1)}
	b := Context{"epic_id": float64(1), "group_id": "g"}
	c := Context{"group_id": "g", "epic_id": float64(2)}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	hc, err := c.Hash()
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.NotEqual(t, ha, hc)
}

func TestContext_StringAndMerge(t *testing.T) {
	ctx := Context{"id": float64(42), "name": "proj", "ratio": 1.5, "empty": nil}

	v, ok := ctx.String("id")
	assert.True(t, ok)
	assert.Equal(t, "42", v)

	v, _ = ctx.String("ratio")
	assert.Equal(t, "1.5", v)

	_, ok = ctx.String("empty")
	assert.False(t, ok)
	_, ok = ctx.String("missing")
	assert.False(t, ok)

	merged := ctx.Merge(Context{"id": "override", "extra": true})
	assert.Equal(t, "override", merged["id"])
	assert.Equal(t, true, merged["extra"])
	assert.Equal(t, float64(42), ctx["id"], "merge must not mutate the receiver")
}

func TestRecord_Get(t *testing.T) {
	record := Record{
		"id":         float64(1),
		"author":     map[string]any{"id": float64(9), "name": "a"},
		"dotted.key": "flat",
	}

	v, ok := record.Get("id")
	assert.True(t, ok)
	assert.Equal(t, float64(1), v)

	v, ok = record.Get("author.id")
	assert.True(t, ok)
	assert.Equal(t, float64(9), v)

	v, ok = record.Get("dotted.key")
	assert.True(t, ok)
	assert.Equal(t, "flat", v)

	_, ok = record.Get("author.email")
	assert.False(t, ok)
	_, ok = record.Get("id.nested")
	assert.False(t, ok)
}
