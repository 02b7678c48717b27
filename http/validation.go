package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"flightdelay/ml"
)

// flightPayload uses pointers so that absent fields can be told apart from
// zero values.
type flightPayload struct {
	Airline    *string `json:"OPERA"`
	FlightType *string `json:"TIPOVUELO"`
	Month      *int    `json:"MES"`
}

type predictRequest struct {
	Flights []flightPayload `json:"flights"`
}

type predictResponse struct {
	Predict []ml.DelayLabel `json:"predict"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type requestError struct {
	status int
	detail string
}

func (e *requestError) Error() string {
	return e.detail
}

func badRequest(format string, args ...any) *requestError {
	return &requestError{status: http.StatusBadRequest, detail: fmt.Sprintf(format, args...)}
}

// decodePredictRequest reads the body and checks every flight against the
// vocabulary the model was trained on.
func decodePredictRequest(r *http.Request) ([]ml.FlightRecord, *requestError) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &requestError{
				status: http.StatusRequestEntityTooLarge,
				detail: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			}
		}
		return nil, badRequest("malformed request body: %v", err)
	}
	if len(req.Flights) == 0 {
		return nil, badRequest("flights must contain at least one flight")
	}

	records := make([]ml.FlightRecord, len(req.Flights))
	for i, flight := range req.Flights {
		record, err := validateFlight(flight)
		if err != nil {
			return nil, badRequest("flights[%d]: %s", i, err.detail)
		}
		records[i] = record
	}
	return records, nil
}

func validateFlight(flight flightPayload) (ml.FlightRecord, *requestError) {
	switch {
	case flight.Airline == nil:
		return ml.FlightRecord{}, badRequest("OPERA is required")
	case flight.FlightType == nil:
		return ml.FlightRecord{}, badRequest("TIPOVUELO is required")
	case flight.Month == nil:
		return ml.FlightRecord{}, badRequest("MES is required")
	}

	if !ml.IsKnownAirline(*flight.Airline) {
		return ml.FlightRecord{}, badRequest("unknown airline %q", *flight.Airline)
	}
	flightType := ml.FlightType(*flight.FlightType)
	if !ml.IsKnownFlightType(flightType) {
		return ml.FlightRecord{}, badRequest("TIPOVUELO must be N or I, got %q", *flight.FlightType)
	}
	if *flight.Month < 1 || *flight.Month > 12 {
		return ml.FlightRecord{}, badRequest("MES must be between 1 and 12, got %d", *flight.Month)
	}

	return ml.FlightRecord{
		Airline:    *flight.Airline,
		FlightType: flightType,
		Month:      *flight.Month,
	}, nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondDetail(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, errorResponse{Detail: detail})
}
