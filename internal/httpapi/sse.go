package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// subscribe serves a Server-Sent-Events feed of composite scores. Events are
// typed "score", "ping", or "error"; the connection stays open until the
// client disconnects.
func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	appID := r.URL.Query().Get("appId")
	if address == "" || appID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("address and appId query parameters are required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.streamer.Subscribe(r.Context(), address, appID, h.streamOpts)
	defer sub.Close()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.WithError(err).Error("marshal stream event")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
