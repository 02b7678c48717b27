package http

import (
	"database/sql"
	"errors"
	"net/http"

	"flightdelay/db"
	"flightdelay/ml"
	"flightdelay/monitoring"

	"go.uber.org/zap"
)

type handlers struct {
	deps   Deps
	logger *zap.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (h *handlers) predict(w http.ResponseWriter, r *http.Request) {
	records, reqErr := decodePredictRequest(r)
	if reqErr != nil {
		if h.deps.Metrics != nil {
			h.deps.Metrics.ObserveValidationError()
		}
		respondDetail(w, reqErr.status, reqErr.detail)
		return
	}

	var labels []ml.DelayLabel
	var generation uint64
	if h.deps.Cache != nil {
		labels, generation = h.deps.Cache.Predict(records)
	} else {
		labels, generation = h.deps.Predictor.PredictWithGeneration(records)
	}
	requestID := GetRequestID(r.Context())

	if h.deps.Metrics != nil {
		h.deps.Metrics.ObservePredictions(labels)
		h.deps.Metrics.SetModelGeneration(h.deps.Predictor.Generation())
	}
	if h.deps.Store != nil && requestID != "" {
		if err := h.deps.Store.SavePredictions(r.Context(), requestID, generation, records, labels); err != nil {
			h.logger.Warn("failed to record predictions", zap.String("request_id", requestID), zap.Error(err))
		}
	}
	if h.deps.Feed != nil {
		err := h.deps.Feed.Publish(monitoring.PredictionEvent{
			ID:         requestID,
			Generation: generation,
			Flights:    records,
			Predict:    labels,
		})
		if err != nil {
			h.logger.Debug("prediction event dropped", zap.String("request_id", requestID), zap.Error(err))
		}
	}

	respondJSON(w, http.StatusOK, predictResponse{Predict: labels})
}

type cacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

type modelResponse struct {
	ModelType    ml.ModelType    `json:"model_type"`
	Trained      bool            `json:"trained"`
	Generation   uint64          `json:"generation"`
	Features     []string        `json:"features"`
	Report       *ml.FitReport   `json:"report,omitempty"`
	LastTraining *db.TrainingLog `json:"last_training,omitempty"`
	Cache        *cacheStats     `json:"cache,omitempty"`
	// RecordedPredictions counts persisted predictions; absent without a store.
	RecordedPredictions *int64 `json:"recorded_predictions,omitempty"`
}

func (h *handlers) model(w http.ResponseWriter, r *http.Request) {
	predictor := h.deps.Predictor
	resp := modelResponse{
		ModelType:  predictor.ModelType(),
		Trained:    predictor.Trained(),
		Generation: predictor.Generation(),
		Features:   predictor.Encoder().FeatureNames(),
	}
	if report, ok := predictor.Report(); ok {
		resp.Report = &report
	}
	if h.deps.Store != nil {
		last, err := h.deps.Store.LatestTrainingLog(r.Context())
		switch {
		case err == nil:
			resp.LastTraining = &last
		case !errors.Is(err, sql.ErrNoRows):
			h.logger.Warn("failed to read training log", zap.Error(err))
		}
		if count, err := h.deps.Store.CountPredictions(r.Context()); err == nil {
			resp.RecordedPredictions = &count
		} else {
			h.logger.Warn("failed to count predictions", zap.Error(err))
		}
	}
	if h.deps.Cache != nil {
		hits, misses := h.deps.Cache.Stats()
		resp.Cache = &cacheStats{Entries: h.deps.Cache.Len(), Hits: hits, Misses: misses}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *handlers) predictions(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")
	records, err := h.deps.Store.LoadPredictions(r.Context(), requestID)
	if err != nil {
		h.logger.Error("failed to load predictions", zap.String("request_id", requestID), zap.Error(err))
		respondDetail(w, http.StatusInternalServerError, "failed to load predictions")
		return
	}
	if len(records) == 0 {
		respondDetail(w, http.StatusNotFound, "no predictions recorded for request "+requestID)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"request_id":  requestID,
		"predictions": records,
	})
}
