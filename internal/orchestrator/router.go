package orchestrator

import (
	"github.com/aiox-platform/usermemory/internal/extractor"
	"github.com/aiox-platform/usermemory/internal/memory"
)

// ResolveLayers returns the layers the gatekeeper approved, in declared order.
func ResolveLayers(decision extractor.Decision) []memory.Layer {
	layers := make([]memory.Layer, 0, len(memory.LayerOrder))
	for _, l := range memory.LayerOrder {
		if decision[l].ShouldExtract {
			layers = append(layers, l)
		}
	}
	return layers
}

// ResolveJobLayers intersects the approved layers with the job's explicit
// filter. An empty filter keeps every approved layer.
func ResolveJobLayers(decision extractor.Decision, filter []memory.Layer) []memory.Layer {
	approved := ResolveLayers(decision)
	if len(filter) == 0 {
		return approved
	}

	wanted := make(map[memory.Layer]bool, len(filter))
	for _, l := range filter {
		wanted[l] = true
	}
	layers := make([]memory.Layer, 0, len(approved))
	for _, l := range approved {
		if wanted[l] {
			layers = append(layers, l)
		}
	}
	return layers
}
