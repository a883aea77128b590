package model

import (
	"encoding/json"
	"fmt"
)

// AnalysisRequest is the payload submitted to the analysis service: the current
// buffer content split into per channel arrays plus session metadata.
//
//nolint:tagliatelle // wire format of the analysis service
type AnalysisRequest struct {
	Speed    []float64       `json:"Speed"`
	RPM      []float64       `json:"RPM"`
	Throttle []float64       `json:"Throttle"`
	Brake    []float64       `json:"Brake"`
	Gear     []float64       `json:"nGear"`
	DRS      []float64       `json:"DRS"`
	X        []float64       `json:"X"`
	Y        []float64       `json:"Y"`
	Distance []float64       `json:"Distance"`
	Metadata AnalysisSession `json:"metadata"`
}

type AnalysisSession struct {
	SessionID string `json:"session_id"`
	Year      int    `json:"year"`
	GP        string `json:"gp"`
	Session   string `json:"session"`
	Driver    string `json:"driver"`
}

// AnalysisResult is treated as opaque overlay data by the engine.
type AnalysisResult struct {
	IsAnomaly           []bool           `json:"is_anomaly"`
	SequenceEndIndices  []int            `json:"sequence_end_indices"`
	ReconstructionError []float64        `json:"reconstruction_error"`
	Classifications     []string         `json:"classifications,omitempty"`
	Explanations        []string         `json:"explanations,omitempty"`
	TopFeatures         [][]FeatureScore `json:"top_features"`
	Threshold           float64          `json:"threshold"`
	SecureReceipts      []SecureReceipt  `json:"secure_receipts,omitempty"`
}

// NumAnomalies returns the number of flagged windows.
func (r *AnalysisResult) NumAnomalies() int {
	n := 0
	for _, v := range r.IsAnomaly {
		if v {
			n++
		}
	}
	return n
}

// FeatureScore is a (name, score) pair, encoded as a two element json array.
type FeatureScore struct {
	Name  string
	Score float64
}

func (f FeatureScore) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.Name, f.Score})
}

func (f *FeatureScore) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("feature score: want 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &f.Name); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &f.Score)
}

// SecureReceipt is the integrity record attached to an anomaly. IntegrityHash is
// computed over the canonical form of Payload and PreviousHash.
type SecureReceipt struct {
	ID            string          `json:"id"`
	Timestamp     string          `json:"timestamp"`
	PreviousHash  string          `json:"previous_hash"`
	IntegrityHash string          `json:"integrity_hash"`
	Payload       json.RawMessage `json:"payload"`
}
