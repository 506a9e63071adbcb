package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrUnknownLayout = errors.New("unknown layout")
	ErrLayoutSize    = errors.New("layout does not support stage count")
)

// Layout names accepted by LayoutByName.
const (
	LayoutSquare = "square"
	LayoutCircle = "circle"
)

// ValidLayouts lists the supported layout names.
var ValidLayouts = []string{LayoutSquare, LayoutCircle}

// ViewBox is the fixed logical coordinate space of the diagram.
type ViewBox struct {
	Width  float64
	Height float64
}

// DefaultViewBox is the 800x600 canvas the layouts are tuned for.
var DefaultViewBox = ViewBox{Width: 800, Height: 600}

func (v ViewBox) String() string {
	return fmt.Sprintf("0 0 %s %s", formatNum(v.Width), formatNum(v.Height))
}

// Layout positions n stages.
type Layout interface {
	Positions(n int) ([]Point, error)
}

// SquareLayout places exactly eight stages around an empty square, two on
// each side, starting top-left and running clockwise.
type SquareLayout struct {
	Padding  float64
	SpacingX float64
	SpacingY float64
}

// DefaultSquareLayout fits the default view box.
var DefaultSquareLayout = SquareLayout{Padding: 100, SpacingX: 240, SpacingY: 160}

// Positions implements Layout.
func (l SquareLayout) Positions(n int) ([]Point, error) {
	if n != 8 {
		return nil, fmt.Errorf("square layout with %d stages: %w", n, ErrLayoutSize)
	}
	p, sx, sy := l.Padding, l.SpacingX, l.SpacingY
	return []Point{
		{X: p + sx*0.5, Y: p},
		{X: p + sx*1.5, Y: p},
		{X: p + sx*2, Y: p + sy*0.5},
		{X: p + sx*2, Y: p + sy*1.5},
		{X: p + sx*1.5, Y: p + sy*2},
		{X: p + sx*0.5, Y: p + sy*2},
		{X: p, Y: p + sy*1.5},
		{X: p, Y: p + sy*0.5},
	}, nil
}

// CircleLayout spaces stages evenly on a circle, first stage at the top,
// continuing clockwise on screen.
type CircleLayout struct {
	Center Point
	Radius float64
}

// Positions implements Layout.
func (l CircleLayout) Positions(n int) ([]Point, error) {
	if n < 1 {
		return nil, fmt.Errorf("circle layout with %d stages: %w", n, ErrLayoutSize)
	}
	step := 2 * math.Pi / float64(n)
	out := make([]Point, n)
	for i := range out {
		angle := -math.Pi/2 + float64(i)*step
		out[i] = Point{
			X: l.Center.X + l.Radius*math.Cos(angle),
			Y: l.Center.Y + l.Radius*math.Sin(angle),
		}
	}
	return out, nil
}

// LayoutByName returns the named layout sized for the view box.
func LayoutByName(name string, vb ViewBox) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", LayoutSquare:
		return DefaultSquareLayout, nil
	case LayoutCircle:
		return CircleLayout{
			Center: Point{X: vb.Width / 2, Y: vb.Height / 2},
			Radius: math.Min(vb.Width, vb.Height)/2 - 100,
		}, nil
	default:
		return nil, fmt.Errorf("%w %q (valid: %s)", ErrUnknownLayout, name, strings.Join(ValidLayouts, ", "))
	}
}
