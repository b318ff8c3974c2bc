package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poolNames(pools []*Pool) []string {
	var res []string
	for _, p := range pools {
		res = append(res, p.Name())
	}
	return res
}

func TestRegistryNaming(t *testing.T) {
	r := NewRegistry()
	first := r.New()
	second := r.New()
	assert.Equal(t, []string{"Pool1", "Pool2"}, poolNames(r.Pools()))

	// the newcomer keeps its name, the registered pool is renamed
	third := New(WithName("Pool1"))
	r.Add(third)
	r.Add(third)
	assert.Equal(t, "Pool3", first.Name())
	assert.Equal(t, []string{"Pool3", "Pool2", "Pool1"}, poolNames(r.Pools()))

	r.Rename(second, "Pool3")
	assert.Equal(t, "Pool3", second.Name())
	assert.Equal(t, "Pool2", first.Name())

	found, ok := r.Find("Pool1")
	require.True(t, ok)
	assert.Same(t, third, found)
	_, ok = r.Find("Pool9")
	assert.False(t, ok)

	r.Remove(first)
	assert.Len(t, r.Pools(), 2)
	assert.Equal(t, "Pool2", r.New().Name(), "free names are reused")
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry()
	p := r.New()
	d := temporal(t, 0, 11, 10)
	require.NoError(t, p.Add(d))

	require.NoError(t, r.Close())
	assert.Empty(t, r.Pools())
	assert.False(t, d.IsOpen())
}
