package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nhle/formpoll/internal/sync"
)

// heartbeatInterval keeps idle event streams open through proxies.
const heartbeatInterval = 25 * time.Second

type healthResponse struct {
	Status string      `json:"status"`
	Poller sync.Status `json:"poller"`
}

func handleHealth(poller StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := poller.Status()
		status := "ok"
		if st.LastError != "" {
			status = "degraded"
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: status, Poller: st})
	}
}

func handleTrigger(poller StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		poller.Trigger()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}
}

// handleEvents streams completion events as Server-Sent Events until the
// client disconnects.
func handleEvents(events Subscriber, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		ch, cancel := events.Subscribe()
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-heartbeat.C:
				fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			case e, open := <-ch:
				if !open {
					return
				}
				data, err := json.Marshal(e.Payload())
				if err != nil {
					logger.Error("encoding event", "event", e.Name, "token", e.Token, "error", err)
					continue
				}
				fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Name, data)
				flusher.Flush()
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
