package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/brewer"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"golang.org/x/image/colornames"

	"github.com/mpapenbr/sentinel-replay/pkg/engine"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/frame"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/sector"
	"github.com/mpapenbr/sentinel-replay/pkg/model"
)

var ErrNoGeometry = errors.New("no track geometry")

const maxGearColors = 9

var (
	neutralColor = color.RGBA{R: 0x3a, G: 0x3a, B: 0x3a, A: 0xff}
	carColor     = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	markerColor  = color.RGBA{R: 0xe1, G: 0x06, B: 0x00, A: 0xff}
	trackBgColor = color.RGBA{R: 0x15, G: 0x15, B: 0x1e, A: 0xff}
)

type (
	TrackOptions struct {
		size   vg.Length
		format string
		mode   frame.MapMode
	}
	TrackOption func(*TrackOptions)
)

func WithSize(size vg.Length) TrackOption {
	return func(o *TrackOptions) {
		o.size = size
	}
}

// WithFormat selects the image format (png, svg, pdf, ...).
func WithFormat(format string) TrackOption {
	return func(o *TrackOptions) {
		o.format = format
	}
}

// WithMapMode overrides the map mode taken from the snapshot.
func WithMapMode(m frame.MapMode) TrackOption {
	return func(o *TrackOptions) {
		o.mode = m
	}
}

// Track draws the track outline colored according to the map mode, the current
// car position and the anomaly markers.
//
//nolint:funlen // readability
func Track(w io.Writer, snap *engine.Snapshot, opt ...TrackOption) error {
	o := &TrackOptions{size: 6 * vg.Inch, format: "png", mode: snap.State.MapMode}
	for _, fn := range opt {
		fn(o)
	}
	g := snap.Geometry
	if g == nil || len(snap.Samples) == 0 {
		return ErrNoGeometry
	}

	p := plot.New()
	p.Title.Text = pageTitle(snap)
	p.BackgroundColor = trackBgColor
	p.Title.TextStyle.Color = carColor
	p.HideAxes()

	var err error
	switch o.mode {
	case frame.MapModeSpeed:
		err = addSpeedLines(p, snap.Samples)
	case frame.MapModeGear:
		err = addGearLines(p, snap.Samples)
	default:
		err = addSectorLines(p, g, highlights(snap.Frame))
	}
	if err != nil {
		return err
	}

	if snap.Frame != nil {
		if err := addPoints(p, plotter.XYs{{X: snap.Frame.Sample.X, Y: snap.Frame.Sample.Y}},
			carColor, vg.Points(5)); err != nil {
			return err
		}
		markers := make(plotter.XYs, 0, len(snap.Frame.Anomalies))
		for _, m := range snap.Frame.Anomalies {
			markers = append(markers, plotter.XY{X: m.X, Y: m.Y})
		}
		if len(markers) > 0 {
			if err := addPoints(p, markers, markerColor, vg.Points(4)); err != nil {
				return err
			}
		}
	}
	squareAxes(p, g.Min, g.Max)

	wt, err := p.WriterTo(o.size, o.size, o.format)
	if err != nil {
		return fmt.Errorf("track image: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

func highlights(f *frame.Frame) [sector.NumSectors]sector.Highlight {
	if f != nil {
		return f.Sectors
	}
	var ret [sector.NumSectors]sector.Highlight
	for i := range ret {
		ret[i] = sector.Highlight{Sector: i, Color: sector.DefaultNeutralColor}
	}
	return ret
}

func addSectorLines(p *plot.Plot, g *sector.Geometry, hl [sector.NumSectors]sector.Highlight) error {
	for s, path := range g.Paths {
		if path.Empty() {
			continue
		}
		xys := make(plotter.XYs, 0, len(path.Points))
		for _, v := range path.Points {
			xys = append(xys, plotter.XY{X: v.X, Y: v.Y})
		}
		c, err := ParseColor(hl[s].Color)
		if err != nil {
			c = neutralColor
		}
		if err := addLine(p, xys, c, vg.Points(4)); err != nil {
			return err
		}
	}
	return nil
}

// addSpeedLines colors every segment by the speed at its start.
func addSpeedLines(p *plot.Plot, samples []model.Sample) error {
	cm := moreland.SmoothBlueRed()
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range samples {
		lo = math.Min(lo, samples[i].Speed)
		hi = math.Max(hi, samples[i].Speed)
	}
	if hi <= lo {
		hi = lo + 1
	}
	cm.SetMin(lo)
	cm.SetMax(hi)
	return addSegments(p, samples, func(s *model.Sample) (color.Color, error) {
		return cm.At(s.Speed)
	})
}

func addGearLines(p *plot.Plot, samples []model.Sample) error {
	pal, err := brewer.GetPalette(brewer.TypeQualitative, "Set1", maxGearColors)
	if err != nil {
		return err
	}
	return addSegments(p, samples, gearColor(pal))
}

func gearColor(pal palette.Palette) func(*model.Sample) (color.Color, error) {
	colors := pal.Colors()
	return func(s *model.Sample) (color.Color, error) {
		g := min(max(s.Gear, 0), len(colors)-1)
		return colors[g], nil
	}
}

// addSegments joins consecutive samples of the same color into one line.
func addSegments(
	p *plot.Plot,
	samples []model.Sample,
	colorOf func(*model.Sample) (color.Color, error),
) error {
	if len(samples) < 2 {
		return nil
	}
	var (
		cur  color.Color
		xys  plotter.XYs
		emit = func() error {
			if len(xys) < 2 {
				return nil
			}
			return addLine(p, xys, cur, vg.Points(4))
		}
	)
	for i := range len(samples) - 1 {
		c, err := colorOf(&samples[i])
		if err != nil {
			return err
		}
		if cur != nil && !sameColor(c, cur) {
			if err := emit(); err != nil {
				return err
			}
			xys = plotter.XYs{xys[len(xys)-1]}
		}
		cur = c
		if len(xys) == 0 {
			xys = append(xys, plotter.XY{X: samples[i].X, Y: samples[i].Y})
		}
		xys = append(xys, plotter.XY{X: samples[i+1].X, Y: samples[i+1].Y})
	}
	return emit()
}

func addLine(p *plot.Plot, xys plotter.XYs, c color.Color, width vg.Length) error {
	l, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	l.Color = c
	l.Width = width
	p.Add(l)
	return nil
}

func addPoints(p *plot.Plot, xys plotter.XYs, c color.Color, radius vg.Length) error {
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Radius = radius
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(s)
	return nil
}

// squareAxes keeps the aspect ratio of the track on a square canvas.
func squareAxes(p *plot.Plot, lo, hi r2.Vec) {
	c := r2.Scale(0.5, r2.Add(lo, hi))
	half := math.Max(hi.X-lo.X, hi.Y-lo.Y)*0.55 + 1
	p.X.Min, p.X.Max = c.X-half, c.X+half
	p.Y.Min, p.Y.Max = c.Y-half, c.Y+half
}

func sameColor(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}

// ParseColor accepts "#rrggbb", "#rgb" and SVG color names.
func ParseColor(s string) (color.RGBA, error) {
	if c, ok := colornames.Map[strings.ToLower(s)]; ok {
		return c, nil
	}
	if !strings.HasPrefix(s, "#") {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	h := s[1:]
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
