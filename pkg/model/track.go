package model

import "fmt"

// SectorMeta holds the distance thresholds of the three sectors and the highlight
// color assigned to each sector. Immutable once a session is loaded.
type SectorMeta struct {
	Sector1End  float64  `json:"sector1End"      yaml:"sector1End"`
	Sector2End  float64  `json:"sector2End"      yaml:"sector2End"`
	TrackLength float64  `json:"trackLength"     yaml:"trackLength"`
	Colors      []string `json:"colorAssignment" yaml:"colorAssignment"`
}

func (m *SectorMeta) Validate() error {
	if !(m.Sector1End < m.Sector2End && m.Sector2End < m.TrackLength) {
		return fmt.Errorf("%w: sector thresholds not increasing (%v, %v, %v)",
			ErrInvalidSessionData, m.Sector1End, m.Sector2End, m.TrackLength)
	}
	if len(m.Colors) > 3 {
		return fmt.Errorf("%w: got %d sector colors, want at most 3",
			ErrInvalidSessionData, len(m.Colors))
	}
	return nil
}

// Color returns the assigned color of sector idx (0-based) or "" if none.
func (m *SectorMeta) Color(idx int) string {
	if idx < 0 || idx >= len(m.Colors) {
		return ""
	}
	return m.Colors[idx]
}

func (m *SectorMeta) Clone() *SectorMeta {
	ret := *m
	ret.Colors = append([]string(nil), m.Colors...)
	return &ret
}
