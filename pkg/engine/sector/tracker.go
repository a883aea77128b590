package sector

import (
	"github.com/mpapenbr/sentinel-replay/pkg/model"
)

const (
	// DefaultSector3Margin moves the completion threshold of the last sector
	// ahead of the lap wrap, distances close to the finish line are noisy.
	DefaultSector3Margin = 200.0
	DefaultNeutralColor  = "#3a3a3a"
)

// Highlight is the display state of one sector.
type Highlight struct {
	Sector  int    `json:"sector"`
	Reached bool   `json:"reached"`
	Color   string `json:"color"`
}

type (
	Tracker struct {
		meta       *model.SectorMeta
		margin     float64
		neutral    string
		thresholds [NumSectors]float64
		reached    [NumSectors]bool
	}
	Option func(*Tracker)
)

func WithSector3Margin(m float64) Option {
	return func(t *Tracker) {
		t.margin = m
	}
}

func WithNeutralColor(c string) Option {
	return func(t *Tracker) {
		t.neutral = c
	}
}

func NewTracker(meta *model.SectorMeta, opts ...Option) *Tracker {
	t := &Tracker{
		meta:    meta,
		margin:  DefaultSector3Margin,
		neutral: DefaultNeutralColor,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.thresholds = [NumSectors]float64{
		meta.Sector1End,
		meta.Sector2End,
		meta.TrackLength - t.margin,
	}
	return t
}

// Thresholds returns the distances that have to be exceeded to complete each sector.
func (t *Tracker) Thresholds() [NumSectors]float64 {
	return t.thresholds
}

// Update compares distance against the thresholds. A sector is reached strictly
// after its threshold and stays reached until Reset.
func (t *Tracker) Update(distance float64) [NumSectors]Highlight {
	for s := range t.thresholds {
		if distance > t.thresholds[s] {
			t.reached[s] = true
		}
	}
	return t.Highlights()
}

func (t *Tracker) Highlights() [NumSectors]Highlight {
	var ret [NumSectors]Highlight
	for s := range ret {
		ret[s] = Highlight{Sector: s, Reached: t.reached[s], Color: t.neutral}
		if t.reached[s] {
			if c := t.meta.Color(s); c != "" {
				ret[s].Color = c
			}
		}
	}
	return ret
}

func (t *Tracker) Reset() {
	t.reached = [NumSectors]bool{}
}
