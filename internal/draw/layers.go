package draw

import (
	"github.com/DoyleJ11/wordduel/internal/grid"
	"github.com/DoyleJ11/wordduel/internal/types"
)

type Layer int

const (
	LayerConfirmed Layer = iota
	LayerPeer
	LayerLocal
)

func (l Layer) String() string {
	switch l {
	case LayerConfirmed:
		return "confirmed"
	case LayerPeer:
		return "peer"
	case LayerLocal:
		return "local"
	}
	return "unknown"
}

// Stroke is one line to paint on the surface.
type Stroke struct {
	Layer  Layer
	From   types.Point
	To     types.Point
	Color  string
	Width  float64
	Dashed bool
	Word   string
}

// Compose returns strokes back to front: confirmed finds, then the peer's
// live line, then the local live line. Painting in this order keeps a
// confirmed word visible under any preview crossing the same cells.
func Compose(b Board, v View, m grid.Metrics, thickness float64) []Stroke {
	var out []Stroke

	me := b.LocalPlayerID()
	for _, sol := range b.Solutions() {
		color := SolutionColors[1]
		if sol.FoundBy == me {
			color = SolutionColors[0]
		}
		out = append(out, Stroke{
			Layer: LayerConfirmed,
			From:  m.CellCenter(sol.StartIndex),
			To:    m.CellCenter(sol.EndIndex),
			Color: color,
			Width: thickness * 0.85,
			Word:  sol.Word,
		})
	}

	if v.Peer != nil {
		out = append(out, Stroke{
			Layer:  LayerPeer,
			From:   v.Peer.Position.StartPoint,
			To:     v.Peer.Position.EndPoint,
			Color:  v.Peer.Color,
			Width:  thickness * 0.7,
			Dashed: true,
			Word:   v.Peer.Word,
		})
	}

	if v.Dragging && v.Local != nil {
		out = append(out, Stroke{
			Layer: LayerLocal,
			From:  v.Local.Position.StartPoint,
			To:    v.Local.Position.EndPoint,
			Color: v.Local.Color,
			Width: thickness,
			Word:  v.Local.Word,
		})
	}
	return out
}
