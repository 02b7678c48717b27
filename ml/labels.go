package ml

import (
	"strings"
	"time"
)

const (
	TimestampLayout       = "2006-01-02 15:04:05"
	DefaultDelayThreshold = 15 * time.Minute
)

// DelayLabel is the binary target: Delayed when departure slipped past the
// delay threshold.
type DelayLabel int

const (
	OnTime  DelayLabel = 0
	Delayed DelayLabel = 1
)

// TrainingRow is a historical flight with its scheduled (Fecha-I) and actual
// (Fecha-O) departure kept as the raw strings found in the dataset.
type TrainingRow struct {
	FlightRecord
	ScheduledDeparture string
	ActualDeparture    string
}

// ParsedTimestamp holds a dataset timestamp; OK is false when it did not
// parse.
type ParsedTimestamp struct {
	Time time.Time
	OK   bool
}

// ParseTimestamp parses value in TimestampLayout after trimming spaces.
func ParseTimestamp(value string) ParsedTimestamp {
	t, err := time.Parse(TimestampLayout, strings.TrimSpace(value))
	if err != nil {
		return ParsedTimestamp{}
	}
	return ParsedTimestamp{Time: t, OK: true}
}

// DeriveLabel marks a row delayed when the actual departure is more than
// threshold after the scheduled one. The second return is false when either
// timestamp could not be parsed, in which case the label is OnTime.
func DeriveLabel(row TrainingRow, threshold time.Duration) (DelayLabel, bool) {
	scheduled := ParseTimestamp(row.ScheduledDeparture)
	actual := ParseTimestamp(row.ActualDeparture)
	if !scheduled.OK || !actual.OK {
		return OnTime, false
	}
	if actual.Time.Sub(scheduled.Time) > threshold {
		return Delayed, true
	}
	return OnTime, true
}

// GenerateLabels derives one label per row and reports how many rows carried
// an unparseable timestamp.
func GenerateLabels(rows []TrainingRow, threshold time.Duration) (labels []int, malformed int) {
	if threshold <= 0 {
		threshold = DefaultDelayThreshold
	}
	labels = make([]int, len(rows))
	for i, row := range rows {
		label, ok := DeriveLabel(row, threshold)
		if !ok {
			malformed++
		}
		labels[i] = int(label)
	}
	return labels, malformed
}
