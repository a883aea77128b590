package model

import "fmt"

type SessionKey struct {
	Year        int    `json:"year"        yaml:"year"`
	Location    string `json:"location"    yaml:"location"`
	SessionType string `json:"sessionType" yaml:"sessionType"`
	Driver      string `json:"driverCode"  yaml:"driverCode"`
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%d/%s/%s/%s", k.Year, k.Location, k.SessionType, k.Driver)
}

// SessionData is what the session loading service hands to the engine.
type SessionData struct {
	Key     SessionKey `json:"session"   yaml:"session"`
	Samples []Sample   `json:"telemetry" yaml:"telemetry"`
	Sectors SectorMeta `json:"sectors"   yaml:"sectors"`
}
