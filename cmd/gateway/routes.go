package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/croplink/voice-gateway/internal/models"
	"github.com/croplink/voice-gateway/internal/pipeline"
	"github.com/croplink/voice-gateway/internal/store"
	"github.com/croplink/voice-gateway/internal/telemetry"
	"github.com/croplink/voice-gateway/internal/upstream"
)

// defaultJournalPageSize is how many journal entries are returned when the
// caller omits the ?limit= query parameter.
const defaultJournalPageSize = 50

type deps struct {
	ollamaURL   string
	ollamaModel string
	asr         *pipeline.TranscriberRouter
	monitor     *telemetry.Monitor
	journal     *store.Store
	upstreams   *upstream.Registry
	assistantWS http.Handler
	journalWS   http.Handler
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("/ws/voice-assistant", d.assistantWS)
	mux.Handle("/ws/voice-journal", d.journalWS)
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/monitoring/snapshot", d.handleSnapshot)
	mux.HandleFunc("GET /api/journal/entries", d.handleJournalList)
	mux.HandleFunc("GET /api/journal/entries/{id}", d.handleJournalGet)
	mux.HandleFunc("GET /api/upstreams", d.handleUpstreams)
	mux.HandleFunc("GET /api/models", d.handleModels)
	mux.HandleFunc("POST /api/models/preload", d.handlePreload)
	mux.HandleFunc("POST /api/models/unload", d.handleUnload)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (d deps) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := d.monitor.Snapshot()
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		snap.WriteFlatText(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (d deps) handleJournalList(w http.ResponseWriter, r *http.Request) {
	if d.journal == nil {
		http.Error(w, "journal storage not configured", http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	entries, total, err := d.journal.ListEntries(r.Context(), store.Filter{
		UserID: q.Get("user_id"),
		OrgID:  q.Get("org_id"),
		Limit:  queryInt(r, "limit", defaultJournalPageSize),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		slog.Error("list journal entries", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"entries": entries, "total": total})
}

func (d deps) handleJournalGet(w http.ResponseWriter, r *http.Request) {
	if d.journal == nil {
		http.Error(w, "journal storage not configured", http.StatusNotFound)
		return
	}
	entry, err := d.journal.GetEntry(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

func (d deps) handleUpstreams(w http.ResponseWriter, r *http.Request) {
	infos := d.upstreams.ProbeAll(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"upstreams": infos})
}

func (d deps) handleModels(w http.ResponseWriter, r *http.Request) {
	installed, err := models.ListModels(r.Context(), d.ollamaURL)
	if err != nil {
		slog.Error("list models", "error", err)
		installed = []string{d.ollamaModel}
	}
	loaded, _ := models.ListLoaded(r.Context(), d.ollamaURL)
	loadedNames := make([]string, 0, len(loaded))
	for _, m := range loaded {
		loadedNames = append(loadedNames, m.Name)
	}
	resp := map[string]interface{}{
		"transcription": map[string]interface{}{
			"engines": d.asr.Engines(),
		},
		"generation": map[string]interface{}{
			"active": d.ollamaModel,
			"models": installed,
			"loaded": loadedNames,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (d deps) handlePreload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	slog.Info("preloading model", "model", req.Model)
	if err := models.Preload(r.Context(), d.ollamaURL, req.Model); err != nil {
		slog.Error("preload model", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("model preloaded", "model", req.Model)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (d deps) handleUnload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	slog.Info("unloading model", "model", req.Model)
	if err := models.Unload(r.Context(), d.ollamaURL, req.Model); err != nil {
		slog.Error("unload model", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("model unloaded", "model", req.Model)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
