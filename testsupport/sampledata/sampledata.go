// Package sampledata provides synthetic sessions for tests.
package sampledata

import (
	"math"

	"github.com/mpapenbr/sentinel-replay/pkg/model"
)

const (
	TrackLength = 5000.0
	Sector1End  = 1500.0
	Sector2End  = 3200.0
)

func SampleSectors() *model.SectorMeta {
	return &model.SectorMeta{
		Sector1End:  Sector1End,
		Sector2End:  Sector2End,
		TrackLength: TrackLength,
		Colors:      []string{"purple", "green", "yellow"},
	}
}

// SampleLap returns n samples on a circular track of TrackLength meters.
// Distance grows linearly from 0 to TrackLength*(n-1)/n.
func SampleLap(n int) []model.Sample {
	radius := TrackLength / (2 * math.Pi)
	ret := make([]model.Sample, n)
	for i := range n {
		frac := float64(i) / float64(n)
		theta := frac * 2 * math.Pi
		ret[i] = model.Sample{
			Speed:    200 + 50*math.Sin(theta*3),
			RPM:      10000 + float64(i%20)*100,
			Throttle: math.Mod(float64(i)*7, 100),
			Brake:    0,
			Gear:     3 + i%5,
			DRS:      0,
			X:        radius * math.Cos(theta),
			Y:        radius * math.Sin(theta),
			Distance: frac * TrackLength,
		}
	}
	return ret
}

// SampleSession combines SampleLap and SampleSectors.
func SampleSession(n int) *model.SessionData {
	return &model.SessionData{
		Key: model.SessionKey{
			Year: 2023, Location: "Bahrain", SessionType: "R", Driver: "PER",
		},
		Samples: SampleLap(n),
		Sectors: *SampleSectors(),
	}
}

// Linear returns n samples on a straight line along the x axis, 10m apart, with
// channel values equal to the index. Handy for exact interpolation checks.
func Linear(n int) []model.Sample {
	ret := make([]model.Sample, n)
	for i := range n {
		v := float64(i)
		ret[i] = model.Sample{
			Speed: v, RPM: v * 100, Throttle: v, Brake: 0,
			Gear: i % 8, DRS: i % 2,
			X: v * 10, Y: 0, Distance: v * 10,
		}
	}
	return ret
}
