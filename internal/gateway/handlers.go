package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"coinstream/internal/model"
)

// AlertService is the alert CRUD surface the REST routes need.
type AlertService interface {
	List(ctx context.Context) ([]model.AlertSpec, error)
	Create(ctx context.Context, a model.AlertSpec) (model.AlertSpec, error)
	Reset(ctx context.Context, id string) error
}

// IndicatorReader exposes the latest indicator snapshot per series.
type IndicatorReader interface {
	Latest(symbol string, tf model.Timeframe) (model.SeriesSnapshot, bool)
}

// QuoteReader exposes the latest quote per symbol.
type QuoteReader interface {
	LatestQuotes() []model.Quote
}

// API bundles the collaborators behind the REST routes.
type API struct {
	Alerts     AlertService
	Indicators IndicatorReader
	Quotes     QuoteReader
	DefaultTF  model.Timeframe
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// RegisterRoutes registers the WebSocket endpoint and REST routes.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, api API) {
	mux.HandleFunc("GET /ws", hub.ServeWS)

	mux.HandleFunc("GET /api/alerts", func(w http.ResponseWriter, r *http.Request) {
		alerts, err := api.Alerts.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if alerts == nil {
			alerts = []model.AlertSpec{}
		}
		writeJSON(w, http.StatusOK, alerts)
	})

	mux.HandleFunc("POST /api/alerts", func(w http.ResponseWriter, r *http.Request) {
		var req model.AlertSpec
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
		if req.Symbol == "" || !hub.knownSymbol(req.Symbol) {
			writeError(w, http.StatusBadRequest, "unknown symbol")
			return
		}
		if err := req.Condition.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Condition.IsIndicator() && req.Condition.Timeframe == "" {
			req.Condition.Timeframe = api.DefaultTF
		}
		if _, err := model.ParseTimeframe(string(req.Condition.Timeframe)); req.Condition.IsIndicator() && err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		created, err := api.Alerts.Create(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, created)
	})

	mux.HandleFunc("POST /api/alerts/{id}/reset", func(w http.ResponseWriter, r *http.Request) {
		err := api.Alerts.Reset(r.Context(), r.PathValue("id"))
		switch {
		case errors.Is(err, model.ErrAlertNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
		}
	})

	mux.HandleFunc("GET /api/indicators/latest", func(w http.ResponseWriter, r *http.Request) {
		symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
		tf := model.Timeframe(r.URL.Query().Get("timeframe"))
		if tf == "" {
			tf = api.DefaultTF
		}
		snap, ok := api.Indicators.Latest(symbol, tf)
		if !ok {
			writeError(w, http.StatusNotFound, "no indicator data for "+model.SeriesKey(symbol, tf))
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	mux.HandleFunc("GET /api/prices/latest", func(w http.ResponseWriter, r *http.Request) {
		quotes := api.Quotes.LatestQuotes()
		if quotes == nil {
			quotes = []model.Quote{}
		}
		writeJSON(w, http.StatusOK, quotes)
	})

	mux.HandleFunc("OPTIONS /api/", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.WriteHeader(http.StatusOK)
	})
}
