// Package web exposes a read-only HTTP endpoint for operators.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/cryptowallet/internal/services/pricecache"
	"github.com/vadiminshakov/cryptowallet/internal/storage/journal"
	"go.uber.org/zap"
)

const (
	journalPollInterval = 2 * time.Second
	heartbeatInterval   = 30 * time.Second
)

type journalReader interface {
	EntriesAfter(index uint64) ([]journal.Record, error)
}

type cacheStats interface {
	Stats() pricecache.Stats
}

type userCounter interface {
	Count() int
}

type connStats interface {
	ActiveConnections() int
	CommandsServed() uint64
}

// Stats is the body of GET /stats.
type Stats struct {
	Users          int              `json:"users"`
	Connections    int              `json:"connections"`
	CommandsServed uint64           `json:"commands_served"`
	Cache          pricecache.Stats `json:"cache"`
}

// Server serves health, stats and the ledger journal.
type Server struct {
	Addr    string
	Journal journalReader
	Cache   cacheStats
	Users   userCounter
	Conns   connStats

	pollInterval time.Duration
	logger       *zap.Logger
}

// NewServer creates a new ops server instance.
func NewServer(addr string, j journalReader, c cacheStats, u userCounter, conns connStats, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Addr:         addr,
		Journal:      j,
		Cache:        c,
		Users:        u,
		Conns:        conns,
		pollInterval: journalPollInterval,
		logger:       logger,
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/journal", s.handleJournal).Methods(http.MethodGet)
	r.HandleFunc("/journal/stream", s.handleJournalStream).Methods(http.MethodGet)
	return r
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("ops endpoint listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "ops endpoint")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var stats Stats
	if s.Users != nil {
		stats.Users = s.Users.Count()
	}
	if s.Conns != nil {
		stats.Connections = s.Conns.ActiveConnections()
		stats.CommandsServed = s.Conns.CommandsServed()
	}
	if s.Cache != nil {
		stats.Cache = s.Cache.Stats()
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		http.Error(w, "journal not available", http.StatusServiceUnavailable)
		return
	}

	after, err := afterParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := s.Journal.EntriesAfter(after)
	if err != nil {
		s.logger.Error("journal read failed", zap.Uint64("after", after), zap.Error(err))
		http.Error(w, "failed to load journal", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []journal.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleJournalStream(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		http.Error(w, "journal not available", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastIndex, err := afterParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()

	sendEntries := func() error {
		records, err := s.Journal.EntriesAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Entry)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprintf(w, "event: %s\n", record.Entry.Kind)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			lastIndex = record.Index
		}
		flusher.Flush()
		return nil
	}

	if err := sendEntries(); err != nil {
		s.logger.Error("journal stream initial load", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendEntries(); err != nil {
				s.logger.Warn("journal stream poll", zap.Error(err))
			}
		}
	}
}

func afterParam(r *http.Request) (uint64, error) {
	raw := r.URL.Query().Get("after")
	if raw == "" {
		raw = r.Header.Get("Last-Event-ID")
	}
	if raw == "" {
		return 0, nil
	}
	after, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.Errorf("invalid after index %q", raw)
	}
	return after, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
