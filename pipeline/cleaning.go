package pipeline

import (
	"fmt"
	"sync"
	"time"

	"flightdelay/ml"

	"go.uber.org/zap"
)

// InspectionRule checks one training row. A rule never rejects a row; it only
// reports what a strict boundary would have refused.
type InspectionRule interface {
	Check(row ml.TrainingRow) error
	Name() string
}

type QualityIssue struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Row       int       `json:"row"`
	Timestamp time.Time `json:"timestamp"`
}

type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Clean          int64            `json:"clean"`
	Flagged        int64            `json:"flagged"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// DataCleaner inspects training rows and keeps a bounded sample of the
// issues it found.
type DataCleaner struct {
	rules     []InspectionRule
	maxIssues int
	logger    *zap.Logger

	mu     sync.RWMutex
	issues []QualityIssue
	stats  CleaningStats
}

func NewDataCleaner(logger *zap.Logger) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaner := &DataCleaner{
		maxIssues: 100,
		logger:    logger,
		stats:     CleaningStats{Issues: make(map[string]int64)},
	}

	cleaner.AddRule(AirlineRule{})
	cleaner.AddRule(FlightTypeRule{})
	cleaner.AddRule(MonthRule{})
	cleaner.AddRule(TimestampRule{})

	return cleaner
}

func (dc *DataCleaner) AddRule(rule InspectionRule) {
	dc.rules = append(dc.rules, rule)
	dc.logger.Debug("added inspection rule", zap.String("rule", rule.Name()))
}

// Inspect runs every rule over rows and returns the accumulated stats.
func (dc *DataCleaner) Inspect(rows []ml.TrainingRow) CleaningStats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for i, row := range rows {
		dc.stats.TotalProcessed++
		flagged := false
		for _, rule := range dc.rules {
			if err := rule.Check(row); err != nil {
				flagged = true
				dc.stats.Issues[rule.Name()]++
				if len(dc.issues) < dc.maxIssues {
					dc.issues = append(dc.issues, QualityIssue{
						Type:      rule.Name(),
						Message:   err.Error(),
						Row:       i,
						Timestamp: time.Now(),
					})
				}
			}
		}
		if flagged {
			dc.stats.Flagged++
		} else {
			dc.stats.Clean++
		}
	}
	dc.stats.LastClean = time.Now()

	return dc.snapshot()
}

// GetIssues returns up to limit recorded issues in row order; limit <= 0
// returns all of them.
func (dc *DataCleaner) GetIssues(limit int) []QualityIssue {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	if limit <= 0 || limit > len(dc.issues) {
		limit = len(dc.issues)
	}
	issues := make([]QualityIssue, limit)
	copy(issues, dc.issues[:limit])
	return issues
}

func (dc *DataCleaner) snapshot() CleaningStats {
	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

type AirlineRule struct{}

func (AirlineRule) Name() string { return "unknown_airline" }

func (AirlineRule) Check(row ml.TrainingRow) error {
	if !ml.IsKnownAirline(row.Airline) {
		return fmt.Errorf("airline %q is not a known operator", row.Airline)
	}
	return nil
}

type FlightTypeRule struct{}

func (FlightTypeRule) Name() string { return "unknown_flight_type" }

func (FlightTypeRule) Check(row ml.TrainingRow) error {
	if !ml.IsKnownFlightType(row.FlightType) {
		return fmt.Errorf("flight type %q is neither N nor I", row.FlightType)
	}
	return nil
}

type MonthRule struct{}

func (MonthRule) Name() string { return "month_out_of_range" }

func (MonthRule) Check(row ml.TrainingRow) error {
	if row.Month < 1 || row.Month > 12 {
		return fmt.Errorf("month %d out of range [1, 12]", row.Month)
	}
	return nil
}

type TimestampRule struct{}

func (TimestampRule) Name() string { return "malformed_timestamp" }

func (TimestampRule) Check(row ml.TrainingRow) error {
	if !ml.ParseTimestamp(row.ScheduledDeparture).OK {
		return fmt.Errorf("scheduled departure %q is not %s", row.ScheduledDeparture, ml.TimestampLayout)
	}
	if !ml.ParseTimestamp(row.ActualDeparture).OK {
		return fmt.Errorf("actual departure %q is not %s", row.ActualDeparture, ml.TimestampLayout)
	}
	return nil
}
