// Package overlay turns an analysis result into buffer indices that can be drawn
// on top of the replay. An overlay never changes the buffer.
package overlay

import (
	"slices"

	"github.com/samber/lo"

	"github.com/mpapenbr/sentinel-replay/pkg/model"
	"github.com/mpapenbr/sentinel-replay/pkg/telemetry/buffer"
)

// DefaultTimesteps is the window size of the analysis model.
const DefaultTimesteps = 10

// Entry is one flagged window of an analysis result.
type Entry struct {
	Window      int                  `json:"window"`
	Index       int                  `json:"index"`
	Error       float64              `json:"error"`
	Tag         string               `json:"tag,omitempty"`
	Explanation string               `json:"explanation,omitempty"`
	TopFeatures []model.FeatureScore `json:"topFeatures,omitempty"`
	Receipt     *model.SecureReceipt `json:"receipt,omitempty"`
}

// Marker is an entry projected onto the current buffer positions.
type Marker struct {
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Tag   string  `json:"tag,omitempty"`
}

type (
	Overlay struct {
		entries   []Entry
		threshold float64
	}
	Option      func(*buildConfig)
	buildConfig struct {
		timesteps int
	}
)

func WithTimesteps(n int) Option {
	return func(c *buildConfig) {
		if n > 0 {
			c.timesteps = n
		}
	}
}

// Build collects the flagged windows of res.
//
// Optional per anomaly data (end indices, classifications, explanations, top
// features, receipts) is accepted either per window (same length as IsAnomaly) or
// per anomaly (one element per flagged window). Without end indices a window w
// ends at w+timesteps-1.
func Build(res *model.AnalysisResult, opts ...Option) *Overlay {
	cfg := &buildConfig{timesteps: DefaultTimesteps}
	for _, opt := range opts {
		opt(cfg)
	}
	o := &Overlay{threshold: res.Threshold}
	windows := len(res.IsAnomaly)
	anomalies := res.NumAnomalies()
	k := 0
	for w, flagged := range res.IsAnomaly {
		if !flagged {
			continue
		}
		pick := func(n int) (int, bool) {
			switch n {
			case windows:
				return w, true
			case anomalies:
				return k, true
			default:
				return 0, false
			}
		}
		e := Entry{Window: w, Index: w + cfg.timesteps - 1}
		if i, ok := pick(len(res.SequenceEndIndices)); ok {
			e.Index = res.SequenceEndIndices[i]
		}
		if i, ok := pick(len(res.ReconstructionError)); ok {
			e.Error = res.ReconstructionError[i]
		}
		if i, ok := pick(len(res.Classifications)); ok {
			e.Tag = res.Classifications[i]
		}
		if i, ok := pick(len(res.Explanations)); ok {
			e.Explanation = res.Explanations[i]
		}
		if i, ok := pick(len(res.TopFeatures)); ok {
			e.TopFeatures = slices.Clone(res.TopFeatures[i])
		}
		if i, ok := pick(len(res.SecureReceipts)); ok {
			r := res.SecureReceipts[i]
			e.Receipt = &r
		}
		k++
		if e.Index < 0 {
			continue
		}
		o.entries = append(o.entries, e)
	}
	return o
}

func (o *Overlay) Threshold() float64 {
	return o.threshold
}

func (o *Overlay) Len() int {
	return len(o.entries)
}

// Entries returns a copy of the flagged windows.
func (o *Overlay) Entries() []Entry {
	return slices.Clone(o.entries)
}

// Indices returns the distinct flagged buffer indices in ascending order.
func (o *Overlay) Indices() []int {
	ret := lo.Uniq(lo.Map(o.entries, func(e Entry, _ int) int { return e.Index }))
	slices.Sort(ret)
	return ret
}

// Project resolves the current coordinates of every flagged index. Indices beyond
// the buffer are skipped. Positions are read from the buffer at call time, an
// index corrupted by a position attack is drawn where the buffer says it is.
func (o *Overlay) Project(src buffer.Reader) []Marker {
	ret := make([]Marker, 0, len(o.entries))
	seen := make(map[int]bool, len(o.entries))
	for _, e := range o.entries {
		if seen[e.Index] {
			continue
		}
		s, err := src.Get(e.Index)
		if err != nil {
			continue
		}
		seen[e.Index] = true
		ret = append(ret, Marker{Index: e.Index, X: s.X, Y: s.Y, Tag: e.Tag})
	}
	return ret
}
