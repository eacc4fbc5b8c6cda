package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalities(t *testing.T) {
	localities, err := Localities()
	require.NoError(t, err)
	require.NotEmpty(t, localities)

	region := DefaultRegion()
	for _, l := range localities {
		assert.NotEmpty(t, l.Name)
		assert.Equal(t, "MA", l.State)
		assert.True(t, region.Contains(l.Latitude, l.Longitude),
			"locality %s reference coordinate outside default region", l.Name)
	}
}

func TestSources(t *testing.T) {
	sources := Sources()
	require.Len(t, sources, 3)

	seen := make(map[string]bool)
	for _, s := range sources {
		assert.NotEmpty(t, s.ID)
		assert.NotEmpty(t, s.Name)
		assert.False(t, seen[s.ID], "duplicate source %s", s.ID)
		seen[s.ID] = true
	}
}
