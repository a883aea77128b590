// Package session loads recorded telemetry sessions.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/mpapenbr/sentinel-replay/pkg/model"
)

var ErrLoadFailed = errors.New("session load failed")

type Loader interface {
	Load(ctx context.Context, key model.SessionKey) (*model.SessionData, error)
}

type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// payload mirrors model.SessionData with optional fields, a missing channel
// must be detected instead of silently becoming zero.
type (
	payload struct {
		Session   *model.SessionKey `json:"session"   yaml:"session"`
		Telemetry []wireSample      `json:"telemetry" yaml:"telemetry"`
		Sectors   *wireSectors      `json:"sectors"   yaml:"sectors"`
	}
	//nolint:tagliatelle // wire format
	wireSample struct {
		Speed    *number `json:"Speed"    yaml:"Speed"`
		RPM      *number `json:"RPM"      yaml:"RPM"`
		Throttle *number `json:"Throttle" yaml:"Throttle"`
		Brake    *number `json:"Brake"    yaml:"Brake"`
		Gear     *number `json:"nGear"    yaml:"nGear"`
		DRS      *number `json:"DRS"      yaml:"DRS"`
		X        *number `json:"X"        yaml:"X"`
		Y        *number `json:"Y"        yaml:"Y"`
		Distance *number `json:"Distance" yaml:"Distance"`
	}
	wireSectors struct {
		Sector1End  *float64 `json:"sector1End"      yaml:"sector1End"`
		Sector2End  *float64 `json:"sector2End"      yaml:"sector2End"`
		TrackLength *float64 `json:"trackLength"     yaml:"trackLength"`
		Colors      []string `json:"colorAssignment" yaml:"colorAssignment"`
	}
)

// Decode reads a session payload. Missing channels, missing sector metadata or
// an empty telemetry array yield model.ErrInvalidSessionData.
func Decode(r io.Reader, format Format) (*model.SessionData, error) {
	var p payload
	var err error
	switch format {
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&p)
	default:
		err = json.NewDecoder(r).Decode(&p)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidSessionData, err)
	}
	return p.toModel()
}

func (p *payload) toModel() (*model.SessionData, error) {
	if len(p.Telemetry) == 0 {
		return nil, fmt.Errorf("%w: empty telemetry", model.ErrInvalidSessionData)
	}
	if p.Sectors == nil {
		return nil, fmt.Errorf("%w: missing sector metadata", model.ErrInvalidSessionData)
	}
	ret := &model.SessionData{Samples: make([]model.Sample, len(p.Telemetry))}
	if p.Session != nil {
		ret.Key = *p.Session
	}
	for i := range p.Telemetry {
		s, err := p.Telemetry[i].toModel()
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		ret.Samples[i] = s
	}
	sec := p.Sectors
	for name, v := range map[string]*float64{
		"sector1End": sec.Sector1End, "sector2End": sec.Sector2End,
		"trackLength": sec.TrackLength,
	} {
		if v == nil {
			return nil, fmt.Errorf("%w: missing %s", model.ErrInvalidSessionData, name)
		}
	}
	ret.Sectors = model.SectorMeta{
		Sector1End:  *sec.Sector1End,
		Sector2End:  *sec.Sector2End,
		TrackLength: *sec.TrackLength,
		Colors:      sec.Colors,
	}
	if err := ret.Sectors.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (w *wireSample) toModel() (model.Sample, error) {
	fields := []struct {
		c model.Channel
		v *number
	}{
		{model.ChannelSpeed, w.Speed},
		{model.ChannelRPM, w.RPM},
		{model.ChannelThrottle, w.Throttle},
		{model.ChannelBrake, w.Brake},
		{model.ChannelGear, w.Gear},
		{model.ChannelDRS, w.DRS},
		{model.ChannelX, w.X},
		{model.ChannelY, w.Y},
		{model.ChannelDistance, w.Distance},
	}
	for _, f := range fields {
		if f.v == nil {
			return model.Sample{}, fmt.Errorf("%w: missing channel %s",
				model.ErrInvalidSessionData, f.c)
		}
	}
	s := model.Sample{
		Speed:    float64(*w.Speed),
		RPM:      float64(*w.RPM),
		Throttle: float64(*w.Throttle),
		Brake:    float64(*w.Brake),
		Gear:     int(*w.Gear),
		DRS:      int(*w.DRS),
		X:        float64(*w.X),
		Y:        float64(*w.Y),
		Distance: float64(*w.Distance),
	}
	if err := s.Validate(); err != nil {
		return model.Sample{}, err
	}
	return s, nil
}

// number is a channel value. Boolean channels (e.g. Brake) map to 0 and 100.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*n = boolValue(b)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = number(f)
	return nil
}

func (n *number) UnmarshalYAML(value *yaml.Node) error {
	var b bool
	if value.ShortTag() == "!!bool" {
		if err := value.Decode(&b); err != nil {
			return err
		}
		*n = boolValue(b)
		return nil
	}
	var f float64
	if err := value.Decode(&f); err != nil {
		return err
	}
	*n = number(f)
	return nil
}

func boolValue(b bool) number {
	if b {
		return 100
	}
	return 0
}
