package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mchmarny/churnctl/pkg/config"
	"github.com/mchmarny/churnctl/pkg/failure"
	"github.com/mchmarny/churnctl/pkg/score"
	"github.com/mchmarny/churnctl/pkg/store"
)

const (
	reportLimitDefault = 50
	maxRequestBytes    = 1 << 20
)

type unavailable struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason"`
}

type metricsResponse struct {
	Available bool           `json:"available"`
	Metrics   *store.Metrics `json:"metrics"`
}

type reportResponse struct {
	Available bool         `json:"available"`
	Total     int          `json:"total"`
	Items     []score.Risk `json:"items"`
}

type schemaResponse struct {
	Available bool          `json:"available"`
	Model     string        `json:"model"`
	Fields    []score.Field `json:"fields"`
	Tiers     config.Tiers  `json:"tiers"`
}

type predictResponse struct {
	Available bool `json:"available"`
	score.Prediction
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeLoadError reports a failed artifact load. A missing artifact is an
// expected state, not a server error.
func writeLoadError(w http.ResponseWriter, err error, missingStatus int) {
	if errors.Is(err, failure.ErrArtifactMissing) {
		writeJSON(w, missingStatus, &unavailable{Reason: err.Error()})
		return
	}
	slog.Error("failed to load artifact", "error", err)
	writeError(w, http.StatusInternalServerError, "failed to load artifact")
}

func metricsAPIHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := st.LoadMetrics()
		if err != nil {
			writeLoadError(w, err, http.StatusOK)
			return
		}
		writeJSON(w, http.StatusOK, &metricsResponse{Available: true, Metrics: m})
	}
}

func reportAPIHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryParamInt(r, "limit", reportLimitDefault)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		list, err := st.LoadReport()
		if err != nil {
			writeLoadError(w, err, http.StatusOK)
			return
		}

		writeJSON(w, http.StatusOK, &reportResponse{
			Available: true,
			Total:     len(list),
			Items:     list[:min(len(list), limit)],
		})
	}
}

func schemaAPIHandler(cfg *config.Config, st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := st.LoadPipeline()
		if err != nil {
			writeLoadError(w, err, http.StatusOK)
			return
		}
		writeJSON(w, http.StatusOK, &schemaResponse{
			Available: true,
			Model:     p.Name,
			Fields:    score.Form(p, cfg.Dashboard.Ranges),
			Tiers:     cfg.Tiers,
		})
	}
}

func predictAPIHandler(cfg *config.Config, st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
			return
		}

		record, err := recordFromJSON(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		p, err := st.LoadPipeline()
		if err != nil {
			writeLoadError(w, err, http.StatusServiceUnavailable)
			return
		}

		pred, _, err := predictRecord(cfg, p, record)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, &predictResponse{Available: true, Prediction: *pred})
	}
}

// recordFromJSON accepts string and number values.
func recordFromJSON(body map[string]any) (map[string]string, error) {
	record := make(map[string]string, len(body))
	for k, v := range body {
		switch val := v.(type) {
		case string:
			record[k] = val
		case json.Number:
			record[k] = val.String()
		default:
			return nil, fmt.Errorf("%w: %s must be a string or a number", failure.ErrInvalidInput, k)
		}
	}
	return record, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, failure.ErrInvalidInput), errors.Is(err, failure.ErrScoring):
		return http.StatusBadRequest
	case errors.Is(err, failure.ErrArtifactMissing):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryParamInt(r *http.Request, key string, defaultVal int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", failure.ErrInvalidInput, key, v)
	}
	return n, nil
}
