package control

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mpapenbr/sentinel-replay/log"
)

// handleFrameStream sends every published frame as server-sent event until the
// client disconnects.
func (s *Server) handleFrameStream(w http.ResponseWriter, r *http.Request) {
	if s.frames == nil {
		respondMessage(w, http.StatusNotImplemented, "frame stream not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondMessage(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	ch := s.frames.Subscribe()
	defer s.frames.CancelSubscription(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case f, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(f)
			if err != nil {
				s.l.Warn("could not marshal frame", log.ErrorField(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: frame\ndata: %s\n\n", f.Seq, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
