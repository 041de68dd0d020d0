package status

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sources are the read-only probes the endpoint reports from. Nil funcs
// are skipped, so the capture CLI and the wall can share this server.
type Sources struct {
	EventID      string
	StartedAt    string
	ChannelState func() string
	PhotoCount   func() int
	QueueDepth   func() (int64, error)
}

// Server is the local status/metrics endpoint for unattended walls:
// health for the kiosk supervisor, JSON status for the `snapwall status`
// command, and prometheus metrics.
type Server struct {
	srv *http.Server
}

type statusResponse struct {
	EventID      string `json:"eventId,omitempty"`
	StartedAt    string `json:"startedAt,omitempty"`
	ChannelState string `json:"channelState,omitempty"`
	PhotoCount   int    `json:"photoCount"`
	QueueDepth   int64  `json:"queueDepth"`
	Time         string `json:"time"`
}

// New builds the server on addr
func New(addr string, src Sources) *Server {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		resp := statusResponse{
			EventID:   src.EventID,
			StartedAt: src.StartedAt,
			Time:      time.Now().UTC().Format(time.RFC3339),
		}
		if src.ChannelState != nil {
			resp.ChannelState = src.ChannelState()
		}
		if src.PhotoCount != nil {
			resp.PhotoCount = src.PhotoCount()
		}
		if src.QueueDepth != nil {
			if n, err := src.QueueDepth(); err == nil {
				resp.QueueDepth = n
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Start serves in the background
func (s *Server) Start() {
	go func() {
		log.Printf("📊 Status endpoint on http://%s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("⚠️ Status server: %v", err)
		}
	}()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
