// Package attack emulates sensor-integrity attacks on the replayed telemetry.
package attack

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/mpapenbr/sentinel-replay/pkg/model"
)

// Vector is the closed set of attack vectors.
type Vector int

const (
	None Vector = iota
	SensorJam
	ThrottleDrift
	GpsSpoof
)

var vectorNames = map[Vector]string{
	None:          "none",
	SensorJam:     "sensor-jam",
	ThrottleDrift: "throttle-drift",
	GpsSpoof:      "gps-spoof",
}

func (v Vector) String() string {
	if name, ok := vectorNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Vector(%d)", int(v))
}

func ParseVector(s string) (Vector, error) {
	for v, name := range vectorNames {
		if name == s {
			return v, nil
		}
	}
	return None, fmt.Errorf("unknown attack vector %q", s)
}

// Vectors returns all vectors except None.
func Vectors() []Vector {
	return []Vector{SensorJam, ThrottleDrift, GpsSpoof}
}

type Params struct {
	ThrottleBias float64 // added by ThrottleDrift
	ThrottleMax  float64 // upper bound of the throttle channel
	GpsOffset    float64 // added to X and Y by GpsSpoof
}

func DefaultParams() Params {
	return Params{ThrottleBias: 10, ThrottleMax: 100, GpsOffset: 2000}
}

// Transform applies vector v to s. It is pure, s is passed by value.
func (p Params) Transform(v Vector, s model.Sample) model.Sample {
	switch v {
	case SensorJam:
		s.RPM = 0
	case ThrottleDrift:
		s.Throttle = lo.Clamp(s.Throttle+p.ThrottleBias, 0, p.ThrottleMax)
	case GpsSpoof:
		s.X += p.GpsOffset
		s.Y += p.GpsOffset
	case None:
	}
	return s
}

// Machine holds the active vector. States are mutually exclusive.
type Machine struct {
	active Vector
}

// Toggle activates v, or returns to None if v is already active.
func (m *Machine) Toggle(v Vector) Vector {
	switch {
	case v == None:
	case m.active == v:
		m.active = None
	default:
		m.active = v
	}
	return m.active
}

// Set activates v. Unlike Toggle, repeating Set keeps v active.
func (m *Machine) Set(v Vector) {
	m.active = v
}

func (m *Machine) Active() Vector {
	return m.active
}

func (m *Machine) Reset() {
	m.active = None
}
