package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"

	"github.com/parkside-labs/apm/internal/logger"
	"github.com/parkside-labs/apm/internal/metrics"
	"github.com/parkside-labs/apm/internal/position"
	"github.com/parkside-labs/apm/internal/state"
	"github.com/parkside-labs/apm/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the position registry and event journal over HTTP.
type WebServer struct {
	router  *mux.Router
	port    string
	factory *position.Factory
}

// NewWebServer creates a new web server instance over the given registry.
func NewWebServer(port string, factory *position.Factory) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		factory: factory,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Prometheus metrics
	ws.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/positions", ws.handleGetPositions).Methods("GET")
	api.HandleFunc("/positions", ws.handleCreatePosition).Methods("POST")
	api.HandleFunc("/positions/{id}/initialize", ws.handleInitializePosition).Methods("POST")
	api.HandleFunc("/positions/{id}", ws.handleGetPosition).Methods("GET")
	api.HandleFunc("/positions/{id}/trigger", ws.handleGetTrigger).Methods("GET")
	api.HandleFunc("/positions/{id}/rebalance", ws.handleRebalance).Methods("POST")
	api.HandleFunc("/events", ws.handleGetEvents).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
	ws.router.Use(metrics.Middleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dbHealthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "apm-position-manager",
			"version": "1.0.0",
		},
		"apm_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"positions":        len(ws.factory.List()),
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// positionView is the API projection of a position.
type positionView struct {
	ID          string               `json:"id"`
	Variant     types.Variant        `json:"variant"`
	Address     string               `json:"address"`
	Initialized bool                 `json:"initialized"`
	Config      types.PositionConfig `json:"config"`
	Underlying  string               `json:"underlying_balance,omitempty"`
	Debt        *types.DebtPosition  `json:"debt,omitempty"`
}

func (ws *WebServer) buildView(pos position.Position, withDetail bool) positionView {
	view := positionView{
		ID:          pos.ID(),
		Variant:     pos.Variant(),
		Address:     pos.Address(),
		Initialized: pos.Initialized(),
		Config:      pos.Config(),
	}
	if !withDetail || !pos.Initialized() {
		return view
	}
	if underlying, err := pos.BalanceOfUnderlying(); err == nil {
		view.Underlying = underlying.String()
	}
	if lev, ok := pos.(*position.Leveraged); ok {
		if debt, err := lev.DebtPosition(); err == nil {
			view.Debt = &debt
		}
	}
	return view
}

// handleGetPositions returns all registered positions
func (ws *WebServer) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions := ws.factory.List()
	views := make([]positionView, 0, len(positions))
	for _, pos := range positions {
		views = append(views, ws.buildView(pos, false))
	}

	response := map[string]interface{}{
		"positions": views,
		"count":     len(views),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleCreatePosition mints a new uninitialized position
func (ws *WebServer) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Variant types.Variant `json:"variant"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Request body must name a variant")
		return
	}

	pos, err := ws.factory.Create(body.Variant)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Failed to create position: "+err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusCreated, ws.buildView(pos, false))
}

// handleInitializePosition performs a position's one-time setup
func (ws *WebServer) handleInitializePosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pos, err := ws.factory.Get(vars["id"])
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
		return
	}

	var body struct {
		Manager          string `json:"manager"`
		Recipient        string `json:"recipient"`
		Threshold        string `json:"threshold"`
		MaxBorrowingRate string `json:"max_borrowing_rate,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Malformed request body")
		return
	}

	cfg := types.PositionConfig{Manager: body.Manager, Recipient: body.Recipient}
	threshold, ok := sdkmath.NewIntFromString(body.Threshold)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Malformed threshold")
		return
	}
	cfg.Threshold = threshold
	if body.MaxBorrowingRate != "" {
		rate, err := sdkmath.LegacyNewDecFromStr(body.MaxBorrowingRate)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Malformed max borrowing rate")
			return
		}
		cfg.MaxBorrowingRate = rate
	}

	if err := pos.Initialize(cfg); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Initialization failed: "+err.Error())
		return
	}
	if err := ws.factory.Persist(pos); err != nil {
		webLogger.Error().Err(err).Str("position_id", pos.ID()).Msg("Failed to persist position record")
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.buildView(pos, true))
}

// handleGetPosition returns one position with live balances and debt
func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pos, err := ws.factory.Get(vars["id"])
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.buildView(pos, true))
}

// handleGetTrigger reports whether a rebalance would act right now
func (ws *WebServer) handleGetTrigger(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pos, err := ws.factory.Get(vars["id"])
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
		return
	}

	triggered, err := pos.RebalanceTrigger()
	if err != nil {
		webLogger.Error().Err(err).Str("position_id", pos.ID()).Msg("Failed to evaluate trigger")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to evaluate trigger")
		return
	}

	response := map[string]interface{}{
		"position_id": pos.ID(),
		"triggered":   triggered,
		"timestamp":   time.Now().UTC(),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleRebalance executes a rebalance on behalf of the submitting actor
func (ws *WebServer) handleRebalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pos, err := ws.factory.Get(vars["id"])
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
		return
	}

	var body struct {
		Actor string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Actor == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Request body must name an actor")
		return
	}

	if err := pos.Rebalance(body.Actor); err != nil {
		if types.ErrTriggerNotMet.Is(err) {
			ws.writeErrorResponse(w, http.StatusConflict, "Trigger not met")
			return
		}
		webLogger.Error().Err(err).Str("position_id", pos.ID()).Msg("Rebalance via API failed")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Rebalance failed")
		return
	}
	metrics.RebalancesTotal.WithLabelValues(string(pos.Variant())).Inc()

	response := map[string]interface{}{
		"position_id": pos.ID(),
		"rebalanced":  true,
		"timestamp":   time.Now().UTC(),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetEvents returns recent events, optionally filtered by position
func (ws *WebServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 1000 {
			limit = parsedLimit
		}
	}
	positionID := r.URL.Query().Get("position_id")

	events, err := state.LoadEvents(positionID, limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to load events")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}

	response := map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  limit,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper captures the status code for logging
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriterWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
