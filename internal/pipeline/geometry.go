package pipeline

import (
	"math"
	"strconv"
	"strings"
)

// Point is a position in the diagram's logical coordinate space.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Distance returns the euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Polyline is an open path through a sequence of points.
type Polyline []Point

// Length returns the total arc length of the polyline.
func (pl Polyline) Length() float64 {
	var total float64
	for i := 1; i < len(pl); i++ {
		total += pl[i-1].Distance(pl[i])
	}
	return total
}

// PointAt returns the point at arc length t*Length() along the polyline.
// t is clamped to [0, 1]. A polyline with a single point, or with zero
// length, always yields its first point.
func (pl Polyline) PointAt(t float64) Point {
	if len(pl) == 0 {
		return Point{}
	}
	switch {
	case t <= 0 || math.IsNaN(t):
		return pl[0]
	case t >= 1:
		return pl[len(pl)-1]
	}

	total := pl.Length()
	if total == 0 {
		return pl[0]
	}

	remaining := t * total
	for i := 1; i < len(pl); i++ {
		seg := pl[i-1].Distance(pl[i])
		if seg == 0 {
			continue
		}
		if remaining <= seg {
			f := remaining / seg
			return Point{
				X: pl[i-1].X + (pl[i].X-pl[i-1].X)*f,
				Y: pl[i-1].Y + (pl[i].Y-pl[i-1].Y)*f,
			}
		}
		remaining -= seg
	}
	return pl[len(pl)-1]
}

// Points formats the polyline for an SVG points attribute.
func (pl Polyline) Points() string {
	parts := make([]string, len(pl))
	for i, p := range pl {
		parts[i] = formatNum(p.X) + "," + formatNum(p.Y)
	}
	return strings.Join(parts, " ")
}

// PathData formats the polyline as SVG path data (M/L commands).
func (pl Polyline) PathData() string {
	var b strings.Builder
	for i, p := range pl {
		if i == 0 {
			b.WriteString("M")
		} else {
			b.WriteString(" L")
		}
		b.WriteString(formatNum(p.X))
		b.WriteString(",")
		b.WriteString(formatNum(p.Y))
	}
	return b.String()
}

// ConnectionPoint returns the point on the circle of the given radius around
// from that faces to.
func ConnectionPoint(from, to Point, radius float64) Point {
	angle := math.Atan2(to.Y-from.Y, to.X-from.X)
	return Point{
		X: from.X + radius*math.Cos(angle),
		Y: from.Y + radius*math.Sin(angle),
	}
}

// Route computes the drawn path between two stage markers of the given
// radius. The path starts and ends on the marker edges. When the centres are
// offset by more than cornerThreshold on both axes the path turns a right
// angle, running horizontally first.
func Route(src, dst Point, radius, cornerThreshold float64) Polyline {
	start := ConnectionPoint(src, dst, radius)
	end := ConnectionPoint(dst, src, radius)

	dx := dst.X - src.X
	dy := dst.Y - src.Y
	if math.Abs(dx) > cornerThreshold && math.Abs(dy) > cornerThreshold {
		return Polyline{start, {X: end.X, Y: start.Y}, end}
	}
	return Polyline{start, end}
}

// formatNum renders a coordinate with at most two decimals and no trailing
// zeros.
func formatNum(f float64) string {
	s := strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
	if s == "-0" {
		return "0"
	}
	return s
}
