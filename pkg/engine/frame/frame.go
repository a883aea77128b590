// Package frame builds the per tick output of the replay engine.
package frame

import (
	"fmt"
	"slices"
	"time"

	"github.com/mpapenbr/sentinel-replay/pkg/analysis/overlay"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/attack"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/interpolate"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/sector"
	"github.com/mpapenbr/sentinel-replay/pkg/model"
)

// MapMode selects how the track map is colored by the renderer.
type MapMode string

const (
	MapModeSectors MapMode = "sectors"
	MapModeSpeed   MapMode = "speed"
	MapModeGear    MapMode = "gear"
)

func ParseMapMode(s string) (MapMode, error) {
	switch m := MapMode(s); m {
	case MapModeSectors, MapModeSpeed, MapModeGear:
		return m, nil
	default:
		return "", fmt.Errorf("unknown map mode %q", s)
	}
}

// Frame is the engine output of one tick. Consumers must treat it as read-only,
// the same value may be delivered to several sinks.
type Frame struct {
	Seq       uint64                              `json:"seq"`
	SessionID string                              `json:"sessionId"`
	At        time.Time                           `json:"at"`
	Index     float64                             `json:"index"`
	Floor     int                                 `json:"floor"`
	Sample    model.Sample                        `json:"sample"`
	Heading   float64                             `json:"heading"`
	Rotation  float64                             `json:"rotation"`
	Attack    string                              `json:"attack"`
	MapMode   MapMode                             `json:"mapMode"`
	Sectors   [sector.NumSectors]sector.Highlight `json:"sectors"`
	Anomalies []overlay.Marker                    `json:"anomalies,omitempty"`
	Running   bool                                `json:"running"`
	Ended     bool                                `json:"ended"`
}

// Input collects everything a frame is derived from.
type Input struct {
	Seq       uint64
	SessionID string
	At        time.Time
	Running   bool
	Ended     bool
	Segment   *interpolate.Segment
	Sample    model.Sample // after attack injection
	Heading   float64
	Rotation  float64
	Attack    attack.Vector
	MapMode   MapMode
	Sectors   [sector.NumSectors]sector.Highlight
	Anomalies []overlay.Marker
}

// Assemble builds a frame from in. The anomaly markers are copied.
func Assemble(in *Input) *Frame {
	return &Frame{
		Seq:       in.Seq,
		SessionID: in.SessionID,
		At:        in.At,
		Index:     in.Segment.Index(),
		Floor:     in.Segment.Floor,
		Sample:    in.Sample,
		Heading:   in.Heading,
		Rotation:  in.Rotation,
		Attack:    in.Attack.String(),
		MapMode:   in.MapMode,
		Sectors:   in.Sectors,
		Anomalies: slices.Clone(in.Anomalies),
		Running:   in.Running,
		Ended:     in.Ended,
	}
}
