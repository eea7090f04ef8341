package integrate

import (
	"fmt"
	"sort"

	"github.com/tkovacs/molnet/pkg/direction"
	"github.com/tkovacs/molnet/pkg/storage"
)

// DirectedEdge is one arc of the directed projection.
type DirectedEdge struct {
	From          storage.NodeID
	To            storage.NodeID
	Sources       []string
	IsStimulation bool
	IsInhibition  bool
}

// DirectedEdges projects the integrated network onto its directed arcs:
// one arc per asserted directed claim, carrying that claim's sources and
// signs. Undirected-only edges contribute nothing. The result is sorted
// by (From, To) for stable output.
func (b *Builder) DirectedEdges() ([]DirectedEdge, error) {
	ias, err := b.engine.AllInteractions()
	if err != nil {
		return nil, fmt.Errorf("projecting directed edges: %w", err)
	}

	out := []DirectedEdge{}
	for _, ia := range ias {
		if ia.Dirs == nil {
			continue
		}
		for _, key := range ia.Dirs.WhichDirs() {
			if key.IsUndirected() {
				continue
			}
			out = append(out, DirectedEdge{
				From:          storage.NodeID(key.From),
				To:            storage.NodeID(key.To),
				Sources:       ia.Dirs.DirSources(key),
				IsStimulation: ia.Dirs.HasSign(key, direction.Positive),
				IsInhibition:  ia.Dirs.HasSign(key, direction.Negative),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out, nil
}
