package scenario

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalDoc = `{
	"control": {"duration": 10, "dt": 1, "seed": 1, "dump_count": 50},
	"recipes": {
		"natu": {"922350000": 0.0071, "922380000": 0.9929}
	},
	"archetypes": [
		{"name": "source1", "kind": "source", "out_commod": "natu", "out_recipe": "natu", "inventory_size": 1e9, "throughput": 100},
		{"name": "sink1", "kind": "sink", "in_commods": ["natu"], "max_inv_size": 1e9, "capacity": 50},
		{"name": "inst1", "kind": "deployinst", "schedule": [{"time": 0, "proto": "source1", "n": 1}]}
	],
	"regions": [
		{"name": "region1", "inst_proto": "inst1"}
	]
}`

func TestParseRejectsMissingDuration(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"control":{"dt":1}}`))
	assert.Error(t, err)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"control":{"duration":1,"dt":1},"bogus":true}`))
	assert.Error(t, err)
}

func TestParseAcceptsMinimalDocument(t *testing.T) {
	doc, err := Parse(strings.NewReader(minimalDoc))
	require.NoError(t, err)
	assert.Equal(t, 10, doc.Control.Duration)
	assert.Len(t, doc.Archetypes, 3)
}

func TestLoadBuildsRunnableContext(t *testing.T) {
	doc, err := Parse(strings.NewReader(minimalDoc))
	require.NoError(t, err)

	ctx, err := Load(doc, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 10, ctx.Duration())
	assert.True(t, ctx.Prototypes.Has("source1"))
	assert.True(t, ctx.Prototypes.Has("sink1"))

	roots := ctx.Tree.Roots()
	require.Len(t, roots, 1, "one region root should have been built")

	children := roots[0].Base().Children()
	require.Len(t, children, 1, "the region's institution should be built under it")
	assert.Equal(t, "inst1", children[0].PrototypeName())
}

func TestLoadRejectsUnknownArchetypeKind(t *testing.T) {
	const doc = `{
		"control": {"duration": 1, "dt": 1},
		"archetypes": [{"name": "bad", "kind": "not-a-real-kind"}]
	}`
	parsed, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)

	_, err = Load(parsed, zerolog.Nop())
	assert.Error(t, err)
}
