// Package server is the thin localhost HTTP surface: health, the full-state
// resync endpoint, and an SSE stream fed by the update bus.
package server

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/termwork/internal/bus"
	"github.com/thebtf/termwork/internal/workspace"
)

// sseWriteTimeout prevents stale connections from blocking the stream.
const sseWriteTimeout = 2 * time.Second

var nextClientId int64

// NewRouter builds the HTTP routes.
func NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", handleHealthz)
	r.Get("/api/connect", handleConnect)
	r.Get("/api/updates", handleUpdates)
	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleConnect returns the full-state packet a consumer applies before
// following the update stream.
func handleConnect(w http.ResponseWriter, r *http.Request) {
	connectUpdate, err := workspace.GetConnectUpdate(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(connectUpdate); err != nil {
		log.Error().Err(err).Msg("error encoding connect update")
	}
}

// handleUpdates streams bus packets as server-sent events until the client
// disconnects.
func handleUpdates(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	clientId := fmt.Sprintf("sse-%d", atomic.AddInt64(&nextClientId, 1))
	sub := bus.MainUpdateBus.Subscribe(clientId)
	defer bus.MainUpdateBus.Unsubscribe(clientId)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()
	log.Debug().Str("client", clientId).Msg("update stream connected")

	rc := http.NewResponseController(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case packet, ok := <-sub.Ch:
			if !ok {
				return
			}
			data, err := json.Marshal(packet)
			if err != nil {
				log.Error().Err(err).Msg("error marshaling update packet")
				continue
			}
			_ = rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout))
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				log.Debug().Str("client", clientId).Err(err).Msg("update stream write failed")
				return
			}
			flusher.Flush()
		}
	}
}
