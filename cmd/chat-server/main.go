// chat-server is the HTTP API for finished analyses: statistics readout,
// semantic search over the indexed conversation, and RAG-backed chat.
//
// Endpoints:
//   - GET  /health                 - Health check
//   - GET  /analyses               - List analyses
//   - GET  /analyses/{id}          - Analysis metadata plus stats when ready
//   - GET  /analyses/{id}/search   - Semantic search over the conversation
//   - GET  /analyses/{id}/context  - Assembled retrieval context for a query
//   - POST /analyses/{id}/chat     - Ask a question about the conversation
//   - GET  /stats                  - Vector store statistics for an analysis
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chatlens/chatlens/pkg/config"
	"github.com/chatlens/chatlens/pkg/insights"
	"github.com/chatlens/chatlens/pkg/rag"
	"github.com/chatlens/chatlens/pkg/storage"
	"github.com/chatlens/chatlens/pkg/vectordb"
)

var (
	addr    = flag.String("addr", "", "HTTP listen address (defaults to server.addr from config)")
	dbPath  = flag.String("db", "", "Path to SQLite database (defaults to database.sqlite from config)")
	cfgPath = flag.String("config", "", "Path to chatlens.yaml (auto-detected if not specified)")
	debug   = flag.Bool("debug", false, "Enable debug logging")
	corsAny = flag.Bool("cors-any", false, "Allow CORS from any origin (for development)")
)

func main() {
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	_ = godotenv.Load()

	cfg, err := config.LoadFromFlagOrDir(*cfgPath, ".")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	sqlitePath := *dbPath
	if sqlitePath == "" {
		sqlitePath = cfg.Database.SQLite
	}
	if sqlitePath == "" {
		log.Fatal().Msg("SQLite database path is empty (set -db or database.sqlite in chatlens.yaml)")
	}

	store, err := storage.New(sqlitePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", sqlitePath).Msg("Failed to open SQLite database")
	}
	defer store.Close()
	log.Info().Str("path", sqlitePath).Msg("Connected to SQLite")

	ctx := context.Background()

	embedder, err := vectordb.New(ctx, cfg.Embedding, embeddingKey(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create embedder")
	}

	vectors, err := rag.NewMilvusStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Milvus")
	}
	defer vectors.Close()
	log.Info().Str("address", cfg.Milvus.Address).Msg("Connected to Milvus")

	service := rag.NewService(vectors, embedder, cfg)

	var answerer insights.Answerer
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		g, err := insights.NewGeminiAugmenter(ctx, cfg.Insights, key)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create chat model, /chat disabled")
		} else {
			defer g.Close()
			answerer = g
		}
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, /chat disabled")
	}

	srv := &server{
		store:    store,
		service:  service,
		vectors:  vectors,
		answerer: answerer,
		limit:    cfg.Retrieval.Limit,
	}

	mux := http.NewServeMux()

	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		if *corsAny {
			return corsMiddleware(h)
		}
		return h
	}

	mux.HandleFunc("GET /health", wrap(srv.health))
	mux.HandleFunc("GET /analyses", wrap(srv.listAnalyses))
	mux.HandleFunc("GET /analyses/{id}", wrap(srv.getAnalysis))
	mux.HandleFunc("GET /analyses/{id}/search", wrap(srv.search))
	mux.HandleFunc("GET /analyses/{id}/context", wrap(srv.retrievalContext))
	mux.HandleFunc("POST /analyses/{id}/chat", wrap(srv.chat))
	mux.HandleFunc("GET /stats", wrap(srv.vectorStats))

	if *corsAny {
		mux.HandleFunc("OPTIONS /analyses/{id}/chat", corsMiddleware(func(w http.ResponseWriter, r *http.Request) {}))
	}

	listenAddr := *addr
	if listenAddr == "" {
		listenAddr = cfg.Server.Addr
	}

	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      loggingMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", listenAddr).Msg("Starting chat server")
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Server stopped")
}

func embeddingKey(cfg *config.Config) string {
	if cfg.Embedding.Provider == "openai" {
		return os.Getenv("OPENAI_API_KEY")
	}
	return os.Getenv("GEMINI_API_KEY")
}

type server struct {
	store    *storage.Storage
	service  *rag.Service
	vectors  *rag.MilvusStore
	answerer insights.Answerer
	limit    int
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	analyses, err := s.store.ListAnalyses(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Listing analyses failed")
		writeError(w, http.StatusInternalServerError, "listing analyses failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": analyses})
}

func (s *server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	analysis, err := s.store.GetAnalysis(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("analysis_id", id).Msg("Fetching analysis failed")
		writeError(w, http.StatusInternalServerError, "fetching analysis failed")
		return
	}

	resp := map[string]any{
		"id":        analysis.ID,
		"name":      analysis.Name,
		"platform":  analysis.Platform,
		"status":    analysis.Status,
		"createdAt": analysis.CreatedAt,
	}
	if analysis.Error != "" {
		resp["error"] = analysis.Error
	}
	if analysis.Status == storage.StatusReady {
		stats, err := s.store.ReadyStats(r.Context(), id)
		if err != nil {
			log.Error().Err(err).Str("analysis_id", id).Msg("Reading stats failed")
			writeError(w, http.StatusInternalServerError, "reading stats failed")
			return
		}
		resp["stats"] = stats
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *server) search(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), s.limit)

	if !s.requireReady(w, r, id) {
		return
	}

	results, err := s.service.Retrieve(r.Context(), id, query, limit)
	if err != nil {
		log.Error().Err(err).Str("analysis_id", id).Str("query", query).Msg("Search failed")
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if results == nil {
		results = []rag.SearchResult{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": results})
}

func (s *server) retrievalContext(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), s.limit)

	if !s.requireReady(w, r, id) {
		return
	}

	ctxText, err := s.service.BuildContext(r.Context(), id, query, limit)
	if err != nil {
		log.Error().Err(err).Str("analysis_id", id).Str("query", query).Msg("Context build failed")
		writeError(w, http.StatusInternalServerError, "context build failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"query": query, "context": ctxText})
}

type chatRequest struct {
	Question string `json:"question"`
}

func (s *server) chat(w http.ResponseWriter, r *http.Request) {
	if s.answerer == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is disabled: no API key configured")
		return
	}

	id := r.PathValue("id")

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	if !s.requireReady(w, r, id) {
		return
	}

	ctxText, err := s.service.BuildContext(r.Context(), id, req.Question, s.limit)
	if err != nil {
		log.Error().Err(err).Str("analysis_id", id).Msg("Context build failed")
		writeError(w, http.StatusInternalServerError, "context build failed")
		return
	}

	// Without embeddings the model still answers, just ungrounded.
	grounded := true
	if ctxText == rag.NoEmbeddingsSentinel || ctxText == rag.NoMatchesMessage {
		ctxText = ""
		grounded = false
	}

	answer, err := s.answerer.Answer(r.Context(), req.Question, ctxText)
	if err != nil {
		log.Error().Err(err).Str("analysis_id", id).Msg("Chat generation failed")
		writeError(w, http.StatusInternalServerError, "chat generation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"question": req.Question,
		"answer":   answer,
		"grounded": grounded,
	})
}

func (s *server) vectorStats(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("analysis_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "query parameter analysis_id is required")
		return
	}

	count, err := s.vectors.Count(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("analysis_id", id).Msg("Vector stats failed")
		writeError(w, http.StatusInternalServerError, "vector stats failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"analysisId": id, "chunks": count})
}

// requireReady rejects requests against analyses that are missing or not
// finished processing. Returns false when a response was already written.
func (s *server) requireReady(w http.ResponseWriter, r *http.Request, id string) bool {
	analysis, err := s.store.GetAnalysis(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "analysis not found")
		return false
	}
	if err != nil {
		log.Error().Err(err).Str("analysis_id", id).Msg("Fetching analysis failed")
		writeError(w, http.StatusInternalServerError, "fetching analysis failed")
		return false
	}
	if analysis.Status != storage.StatusReady {
		writeError(w, http.StatusConflict, "analysis is not ready (status: "+analysis.Status+")")
		return false
	}
	return true
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("query", r.URL.RawQuery).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// corsMiddleware adds CORS headers for development
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return def
}
