//nolint:funlen // ok for tests
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/sentinel-replay/pkg/model"
)

func sampleRequest() *model.AnalysisRequest {
	return &model.AnalysisRequest{
		Speed:    []float64{100, 110},
		RPM:      []float64{9000, 9100},
		Throttle: []float64{100, 100},
		Brake:    []float64{0, 0},
		Gear:     []float64{6, 6},
		DRS:      []float64{0, 0},
		X:        []float64{0, 1},
		Y:        []float64{0, 1},
		Distance: []float64{0, 10},
		Metadata: model.AnalysisSession{SessionID: "s1", Year: 2024, Driver: "VER"},
	}
}

func TestClient_Analyze(t *testing.T) {
	var gotReq model.AnalysisRequest
	var gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predict", r.URL.Path)
		gotID = r.Header.Get(requestIDHeader)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_, _ = w.Write([]byte(`{
			"is_anomaly":[false,true],
			"sequence_end_indices":[9,10],
			"reconstruction_error":[0.1,0.9],
			"top_features":[[["Speed",1.5]]],
			"threshold":0.5}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	res, err := c.Analyze(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, gotID)
	assert.Equal(t, "s1", gotReq.Metadata.SessionID)
	assert.Equal(t, []float64{100, 110}, gotReq.Speed)
	assert.Equal(t, 1, res.NumAnomalies())
	assert.Equal(t, []int{9, 10}, res.SequenceEndIndices)
	assert.InDelta(t, 0.5, res.Threshold, 1e-9)
	require.Len(t, res.TopFeatures, 1)
	assert.Equal(t, model.FeatureScore{Name: "Speed", Score: 1.5}, res.TopFeatures[0][0])
}

func TestClient_AnalyzeFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"error":"not enough samples"}`))
			},
		},
		{
			name: "garbage",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
		},
		{
			name: "length mismatch",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"is_anomaly":[true],"reconstruction_error":[1,2]}`))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := New(srv.URL).Analyze(context.Background(), sampleRequest())
			assert.ErrorIs(t, err, model.ErrAnalysisRequestFailed)
		})
	}
}

func TestClient_AnalyzeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	_, err := New(url).Analyze(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, model.ErrAnalysisRequestFailed)
}

func TestClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"online","version":"1.4.0"}`))
	}))
	defer srv.Close()

	h, err := New(srv.URL).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "online", h.Status)

	_, err = New(srv.URL, WithMinVersion("v1.2.0")).Health(context.Background())
	require.NoError(t, err)

	_, err = New(srv.URL, WithMinVersion("2.0.0")).Health(context.Background())
	assert.True(t, errors.Is(err, ErrIncompatibleService))
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		version string
		min     string
		want    bool
	}{
		{"1.4.0", "v1.2.0", true},
		{"v1.2.0", "1.2.0", true},
		{"1.1.9", "1.2.0", false},
		{"", "1.0.0", false},
		{"dev", "1.0.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.version+"/"+tt.min, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckVersion(tt.version, tt.min))
		})
	}
}
