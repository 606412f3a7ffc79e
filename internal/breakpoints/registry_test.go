package breakpoints

import (
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsDuplicateLocation(t *testing.T) {
	r := New()
	_, err := r.Add(Breakpoint{Path: "main.go", Line: 10})
	require.NoError(t, err)

	_, err = r.Add(Breakpoint{Path: "main.go", Line: 10})
	assert.Error(t, err)
}

func TestAddThenRemoveLeavesRegistryEmpty(t *testing.T) {
	r := New()
	bp, err := r.Add(Breakpoint{Path: "main.go", Line: 4})
	require.NoError(t, err)

	removed, ok := r.Remove(bp.ID)
	require.True(t, ok)
	assert.Equal(t, bp.Path, removed.Path)
	assert.Empty(t, r.List())
	assert.Empty(t, r.Sources())
}

func TestListBySource(t *testing.T) {
	r := New()
	_, _ = r.Add(Breakpoint{Path: "a.go", Line: 1})
	_, _ = r.Add(Breakpoint{Path: "a.go", Line: 2})
	_, _ = r.Add(Breakpoint{Path: "b.go", Line: 1})

	assert.Len(t, r.ListBySource("a.go"), 2)
	assert.Len(t, r.ListBySource("b.go"), 1)
	assert.Empty(t, r.ListBySource("missing.go"))
}

func TestResyncAdoptsAdapterIDsPositionally(t *testing.T) {
	r := New()
	bp1, _ := r.Add(Breakpoint{Path: "a.go", Line: 1})
	bp2, _ := r.Add(Breakpoint{Path: "a.go", Line: 2})

	mismatched := r.Resync("a.go", []*Breakpoint{bp1, bp2}, []dap.Breakpoint{
		{Id: 100, Verified: true},
		{Id: 101, Verified: false},
	})
	require.False(t, mismatched)

	got1, _ := r.Get(bp1.ID)
	got2, _ := r.Get(bp2.ID)
	assert.Equal(t, 100, got1.AdapterID)
	assert.True(t, got1.Verified)
	assert.Equal(t, 101, got2.AdapterID)
	assert.False(t, got2.Verified)
}

func TestResyncMismatchedCountLeavesUnverified(t *testing.T) {
	r := New()
	bp1, _ := r.Add(Breakpoint{Path: "a.go", Line: 1})

	mismatched := r.Resync("a.go", []*Breakpoint{bp1}, []dap.Breakpoint{})
	assert.True(t, mismatched)

	got, _ := r.Get(bp1.ID)
	assert.False(t, got.Verified)
	assert.False(t, got.HasAdapterID)
}
