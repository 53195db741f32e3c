package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aiox-platform/usermemory/internal/memory"
)

func TestResolveLayers_DeclaredOrder(t *testing.T) {
	d := decide(memory.LayerExperience, memory.LayerIdentity, memory.LayerContext)
	assert.Equal(t,
		[]memory.Layer{memory.LayerIdentity, memory.LayerContext, memory.LayerExperience},
		ResolveLayers(d))
	assert.Empty(t, ResolveLayers(decide()))
	assert.Empty(t, ResolveLayers(nil))
}

func TestResolveJobLayers_Intersection(t *testing.T) {
	d := decide(memory.LayerIdentity, memory.LayerPreference, memory.LayerExperience)

	tests := []struct {
		name   string
		filter []memory.Layer
		want   []memory.Layer
	}{
		{"no filter keeps approved", nil, []memory.Layer{memory.LayerIdentity, memory.LayerPreference, memory.LayerExperience}},
		{"filter narrows", []memory.Layer{memory.LayerExperience, memory.LayerIdentity}, []memory.Layer{memory.LayerIdentity, memory.LayerExperience}},
		{"filter outside decision", []memory.Layer{memory.LayerContext}, []memory.Layer{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveJobLayers(d, tt.filter)
			assert.Equal(t, tt.want, got)
			for _, l := range got {
				assert.True(t, d[l].ShouldExtract)
				if len(tt.filter) > 0 {
					assert.Contains(t, tt.filter, l)
				}
			}
		})
	}
}
