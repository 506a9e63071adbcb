package pipeline

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// RenderOptions selects between a static drawing and a self-animating one.
type RenderOptions struct {
	// Animated embeds SMIL animations that replay the timeline forever.
	Animated bool
	// Timing drives the embedded animations. Zero means DefaultTiming.
	Timing Timing
}

const (
	strokeColor    = "#60a5fa"
	markerColor    = "#3b82f6"
	indicatorColor = "#fbbf24"
	indicatorSize  = "6"
	labelGap       = 18
	labelLeading   = 14
)

var iconGlyphs = map[string]string{
	"git":    "git",
	"code":   "</>",
	"node":   "node",
	"yarn":   "yarn",
	"vite":   "vite",
	"upload": "up",
	"github": "gh",
	"globe":  "www",
}

// compiledSVG is parsed at init time to fail fast on template errors.
var compiledSVG = template.Must(template.New("svg").Parse(svgTemplate))

const svgTemplate = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="{{.ViewBox}}" preserveAspectRatio="xMidYMid meet" width="100%" style="max-height:{{.Height}}px" class="pipeline-diagram" role="img" aria-label="Pipeline diagram">
<g class="connections">
{{- range .Connections}}
<polyline id="conn-{{.Index}}" points="{{.Points}}" fill="none" stroke="` + strokeColor + `" stroke-width="2"{{if .Dashed}} stroke-dasharray="6 6"{{end}}{{if .Hidden}} opacity="0"{{end}}>{{.Animation}}</polyline>
{{- end}}
</g>
<g class="stages">
{{- range .Stages}}
<g id="stage-{{.ID}}" class="stage" data-icon="{{html .Icon}}" transform="translate({{.X}},{{.Y}})"{{if .Hidden}} opacity="0"{{end}}>
<circle r="{{$.Radius}}" fill="` + markerColor + `"/>
<text class="icon" text-anchor="middle" dy="0.35em" fill="#ffffff" font-size="14">{{html .Glyph}}</text>
{{- range .Lines}}
<text class="label" y="{{.Y}}" text-anchor="middle" fill="#ffffff" font-size="12">{{html .Text}}</text>
{{- end}}{{.Animation}}
</g>
{{- end}}
</g>
<g class="indicators">
{{- range .Indicators}}
<circle id="dot-{{.Index}}" r="` + indicatorSize + `" fill="` + indicatorColor + `" opacity="0"{{if not $.Animated}} cx="{{.X}}" cy="{{.Y}}"{{end}}>{{.Animation}}</circle>
{{- end}}
</g>
</svg>
`

type svgData struct {
	ViewBox     string
	Height      string
	Radius      string
	Animated    bool
	Connections []svgConnection
	Stages      []svgStage
	Indicators  []svgIndicator
}

type svgConnection struct {
	Index     int
	Points    string
	Dashed    bool
	Hidden    bool
	Animation string
}

type svgStage struct {
	ID        int
	X, Y      string
	Icon      string
	Glyph     string
	Lines     []svgLine
	Hidden    bool
	Animation string
}

type svgLine struct {
	Y    string
	Text string
}

type svgIndicator struct {
	Index     int
	X, Y      string
	Animation string
}

// RenderSVG writes the diagram as a standalone SVG document.
func RenderSVG(w io.Writer, d *Diagram, opts RenderOptions) error {
	if opts.Timing == (Timing{}) {
		opts.Timing = DefaultTiming()
	}
	tl, err := BuildTimeline(d, opts.Timing)
	if err != nil {
		return err
	}

	data := svgData{
		ViewBox:  d.viewBox.String(),
		Height:   formatNum(d.viewBox.Height),
		Radius:   formatNum(d.markerRadius),
		Animated: opts.Animated,
	}

	for _, s := range d.stages {
		st := svgStage{
			ID:    s.ID,
			X:     formatNum(s.Position.X),
			Y:     formatNum(s.Position.Y),
			Icon:  s.Icon,
			Glyph: glyph(s.Icon),
		}
		for i, line := range s.Lines() {
			st.Lines = append(st.Lines, svgLine{
				Y:    formatNum(d.markerRadius + labelGap + float64(i*labelLeading)),
				Text: line,
			})
		}
		if opts.Animated {
			at, _ := tl.StageRevealAt(s.ID)
			st.Hidden = at > 0
			st.Animation = revealAnimation(at, tl.Cycle)
		}
		data.Stages = append(data.Stages, st)
	}

	for j, c := range d.connections {
		sc := svgConnection{Index: j, Points: c.Path.Points(), Dashed: c.Dashed}
		if !c.Dashed {
			start := c.Path.PointAt(0)
			ind := svgIndicator{Index: j, X: formatNum(start.X), Y: formatNum(start.Y)}
			if opts.Animated {
				shown, from, to := connectionWindow(tl, j)
				sc.Hidden = shown > 0
				sc.Animation = revealAnimation(shown, tl.Cycle) + pulseAnimation(opts.Timing.PulsePeriod)
				ind.Animation = travelAnimation(c.Path, from, to, tl.Cycle)
			}
			data.Indicators = append(data.Indicators, ind)
		}
		data.Connections = append(data.Connections, sc)
	}

	if err := compiledSVG.Execute(w, data); err != nil {
		return fmt.Errorf("rendering pipeline svg: %w", err)
	}
	return nil
}

// connectionWindow finds when connection j is revealed and when its
// indicator starts and finishes travelling.
func connectionWindow(tl Timeline, j int) (shown, from, to time.Duration) {
	first := true
	for _, op := range tl.Ops {
		if op.Index != j {
			continue
		}
		switch op.Kind {
		case OpShowConnection:
			shown = op.At
		case OpMoveIndicator:
			if first {
				from = op.At
				first = false
			}
		case OpRemoveIndicator:
			to = op.At
		}
	}
	return shown, from, to
}

func revealAnimation(at, cycle time.Duration) string {
	if at <= 0 {
		return ""
	}
	return fmt.Sprintf(`<animate attributeName="opacity" values="0;1" keyTimes="0;%s" dur="%s" calcMode="discrete" repeatCount="indefinite"/>`,
		fraction(at, cycle), seconds(cycle))
}

func pulseAnimation(period time.Duration) string {
	if period <= 0 {
		return ""
	}
	return fmt.Sprintf(`<animate attributeName="stroke-width" values="2;4;2" dur="%s" repeatCount="indefinite"/>`, seconds(period))
}

// travelAnimation moves the indicator along the drawn path between from and
// to. animateMotion with keyPoints interpolates by arc length, so the dot
// follows the polyline rather than a straight chord.
func travelAnimation(path Polyline, from, to, cycle time.Duration) string {
	s, e := fraction(from, cycle), fraction(to, cycle)
	visibility := fmt.Sprintf(`<animate attributeName="opacity" values="0;1;0" keyTimes="0;%s;%s" dur="%s" calcMode="discrete" repeatCount="indefinite"/>`,
		s, e, seconds(cycle))
	if from <= 0 {
		visibility = fmt.Sprintf(`<animate attributeName="opacity" values="1;0" keyTimes="0;%s" dur="%s" calcMode="discrete" repeatCount="indefinite"/>`,
			e, seconds(cycle))
	}
	motion := fmt.Sprintf(`<animateMotion path="%s" keyPoints="0;0;1;1" keyTimes="0;%s;%s;1" calcMode="linear" dur="%s" repeatCount="indefinite"/>`,
		path.PathData(), s, e, seconds(cycle))
	return visibility + motion
}

func glyph(icon string) string {
	if g, ok := iconGlyphs[icon]; ok {
		return g
	}
	if r := []rune(icon); len(r) > 3 {
		return string(r[:3])
	}
	return icon
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
}

func fraction(at, cycle time.Duration) string {
	if cycle <= 0 {
		return "0"
	}
	f := float64(at) / float64(cycle)
	if f > 1 {
		f = 1
	}
	s := strconv.FormatFloat(f, 'f', 4, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "" {
		return "0"
	}
	return s
}
