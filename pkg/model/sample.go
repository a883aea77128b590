package model

import (
	"fmt"
	"math"
)

type Channel string

const (
	ChannelSpeed    Channel = "Speed"
	ChannelRPM      Channel = "RPM"
	ChannelThrottle Channel = "Throttle"
	ChannelBrake    Channel = "Brake"
	ChannelGear     Channel = "nGear"
	ChannelDRS      Channel = "DRS"
	ChannelX        Channel = "X"
	ChannelY        Channel = "Y"
	ChannelDistance Channel = "Distance"
)

// ScalarChannels are the channels shown as chart series.
var ScalarChannels = []Channel{
	ChannelSpeed, ChannelRPM, ChannelThrottle, ChannelBrake, ChannelGear, ChannelDRS,
}

// AllChannels lists every channel a session sample must provide.
var AllChannels = append(append([]Channel{}, ScalarChannels...),
	ChannelX, ChannelY, ChannelDistance)

// Sample is one telemetry record.
// Gear and DRS are discrete and never interpolated.
type Sample struct {
	Speed    float64 `json:"Speed"    yaml:"Speed"`
	RPM      float64 `json:"RPM"      yaml:"RPM"`
	Throttle float64 `json:"Throttle" yaml:"Throttle"`
	Brake    float64 `json:"Brake"    yaml:"Brake"`
	Gear     int     `json:"nGear"    yaml:"nGear"`
	DRS      int     `json:"DRS"      yaml:"DRS"`
	X        float64 `json:"X"        yaml:"X"`
	Y        float64 `json:"Y"        yaml:"Y"`
	Distance float64 `json:"Distance" yaml:"Distance"`
}

// Value returns the value of channel c as float64.
func (s *Sample) Value(c Channel) float64 {
	switch c {
	case ChannelSpeed:
		return s.Speed
	case ChannelRPM:
		return s.RPM
	case ChannelThrottle:
		return s.Throttle
	case ChannelBrake:
		return s.Brake
	case ChannelGear:
		return float64(s.Gear)
	case ChannelDRS:
		return float64(s.DRS)
	case ChannelX:
		return s.X
	case ChannelY:
		return s.Y
	case ChannelDistance:
		return s.Distance
	default:
		return math.NaN()
	}
}

// Validate checks that all continuous channels carry finite values.
func (s *Sample) Validate() error {
	for _, c := range []Channel{
		ChannelSpeed, ChannelRPM, ChannelThrottle, ChannelBrake,
		ChannelX, ChannelY, ChannelDistance,
	} {
		v := s.Value(c)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: channel %s is not finite", ErrInvalidSessionData, c)
		}
	}
	return nil
}
