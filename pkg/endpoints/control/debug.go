package control

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/mpapenbr/sentinel-replay/pkg/engine/frame"
	"github.com/mpapenbr/sentinel-replay/pkg/render"
)

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.reqTimeout)
	defer cancel()
	snap, err := s.replay.Snapshot(ctx)
	if err != nil {
		s.respondError(w, err)
		return
	}
	var opts []render.ChartOption
	if s.assetsHost != "" {
		opts = append(opts, render.WithAssetsHost(s.assetsHost))
	}
	var buf bytes.Buffer
	if err := render.Charts(&buf, snap, opts...); err != nil {
		s.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleTrack renders the track as PNG. The map mode of the engine can be
// overridden with ?mode=.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var opts []render.TrackOption
	if m := r.URL.Query().Get("mode"); m != "" {
		mode, err := frame.ParseMapMode(m)
		if err != nil {
			respondMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		opts = append(opts, render.WithMapMode(mode))
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.reqTimeout)
	defer cancel()
	snap, err := s.replay.Snapshot(ctx)
	if err != nil {
		s.respondError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := render.Track(&buf, snap, opts...); err != nil {
		if errors.Is(err, render.ErrNoGeometry) {
			respondMessage(w, http.StatusConflict, err.Error())
			return
		}
		s.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
