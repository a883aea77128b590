// Package render draws debug views of the replay state: the chart series as
// go-echarts HTML and the track geometry as PNG.
package render

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/mpapenbr/sentinel-replay/pkg/analysis/overlay"
	"github.com/mpapenbr/sentinel-replay/pkg/engine"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/frame"
	"github.com/mpapenbr/sentinel-replay/pkg/model"
)

const anomalyColor = "#e10600"

type (
	ChartOptions struct {
		assetsHost string
		width      string
		height     string
	}
	ChartOption func(*ChartOptions)
)

// WithAssetsHost sets the location the echarts javascript is loaded from.
func WithAssetsHost(host string) ChartOption {
	return func(o *ChartOptions) {
		o.assetsHost = host
	}
}

func WithChartSize(width, height string) ChartOption {
	return func(o *ChartOptions) {
		o.width = width
		o.height = height
	}
}

// Charts writes an HTML page with one line chart per scalar channel. Anomalies
// of the current overlay are shown as mark points.
func Charts(w io.Writer, snap *engine.Snapshot, opt ...ChartOption) error {
	o := &ChartOptions{
		width:  "100%",
		height: "260px",
	}
	for _, fn := range opt {
		fn(o)
	}

	page := components.NewPage()
	page.SetPageTitle(pageTitle(snap))
	if o.assetsHost != "" {
		page.SetAssetsHost(o.assetsHost)
	}
	for _, c := range model.ScalarChannels {
		page.AddCharts(channelChart(c, snap.Series[c], snap.Findings, o))
	}
	return page.Render(w)
}

func channelChart(
	c model.Channel,
	points []frame.Point,
	findings []overlay.Finding,
	o *ChartOptions,
) *charts.Line {
	data := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		data = append(data, opts.LineData{Value: []interface{}{p.Index, p.Value}})
	}

	line := charts.NewLine()
	init := opts.Initialization{Width: o.width, Height: o.height, Theme: "dark"}
	if o.assetsHost != "" {
		init.AssetsHost = o.assetsHost
	}
	line.SetGlobalOptions(
		charts.WithInitializationOpts(init),
		charts.WithTitleOpts(opts.Title{Title: string(c)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "index", Min: 0}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)

	seriesOpts := []charts.SeriesOpts{
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Width: 1}),
	}
	if marks := markPoints(c, points, findings); len(marks) > 0 {
		seriesOpts = append(seriesOpts,
			charts.WithMarkPointNameCoordItemOpts(marks...),
			charts.WithMarkPointStyleOpts(opts.MarkPointStyle{
				Symbol:     []string{"pin"},
				SymbolSize: 30,
			}))
	}
	line.AddSeries(string(c), data, seriesOpts...)
	return line
}

// markPoints places a mark at every finding already covered by the chart
// history. Values are taken from the buffer at the time the finding was read.
func markPoints(
	c model.Channel,
	points []frame.Point,
	findings []overlay.Finding,
) []opts.MarkPointNameCoordItem {
	if len(points) == 0 {
		return nil
	}
	last := points[len(points)-1].Index
	ret := make([]opts.MarkPointNameCoordItem, 0, len(findings))
	for i := range findings {
		f := &findings[i]
		if float64(f.Index) > last {
			continue
		}
		ret = append(ret, opts.MarkPointNameCoordItem{
			Name:       fmt.Sprintf("%s #%d", f.Event, f.Index),
			Coordinate: []interface{}{f.Index, f.Raw.Value(c)},
			ItemStyle:  &opts.ItemStyle{Color: anomalyColor},
		})
	}
	return ret
}

func pageTitle(snap *engine.Snapshot) string {
	k := snap.State.Session
	if k.Driver == "" {
		return "sentinel replay"
	}
	return fmt.Sprintf("%d %s %s %s", k.Year, k.Location, k.SessionType, k.Driver)
}
