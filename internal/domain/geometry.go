package domain

import "github.com/ctessum/geom"

// Anchor returns a representative point for g: the centre of its bounding
// box. It is used for labels and reverse geocoding, not for area statistics.
func Anchor(g geom.Polygonal) (geom.Point, bool) {
	if g == nil {
		return geom.Point{}, false
	}
	b := g.Bounds()
	if b == nil {
		return geom.Point{}, false
	}
	return geom.Point{X: (b.Min.X + b.Max.X) / 2, Y: (b.Min.Y + b.Max.Y) / 2}, true
}
