package pipeline

import (
	"testing"

	"flightdelay/ml"
)

func TestNewDataCleaner(t *testing.T) {
	cleaner := NewDataCleaner(nil)
	if cleaner == nil {
		t.Fatal("NewDataCleaner returned nil")
	}

	if len(cleaner.rules) == 0 {
		t.Error("No default rules added")
	}
}

func TestInspectionRules(t *testing.T) {
	valid := ml.TrainingRow{
		FlightRecord:       ml.FlightRecord{Airline: "Grupo LATAM", FlightType: ml.Nacional, Month: 7},
		ScheduledDeparture: "2017-07-01 10:00:00",
		ActualDeparture:    "2017-07-01 10:20:00",
	}

	tests := []struct {
		name    string
		rule    InspectionRule
		mutate  func(*ml.TrainingRow)
		wantErr bool
	}{
		{name: "known airline", rule: AirlineRule{}, mutate: func(*ml.TrainingRow) {}, wantErr: false},
		{name: "unknown airline", rule: AirlineRule{}, mutate: func(r *ml.TrainingRow) { r.Airline = "Pan Am" }, wantErr: true},
		{name: "flight type I", rule: FlightTypeRule{}, mutate: func(r *ml.TrainingRow) { r.FlightType = ml.Internacional }, wantErr: false},
		{name: "flight type lowercase", rule: FlightTypeRule{}, mutate: func(r *ml.TrainingRow) { r.FlightType = "n" }, wantErr: true},
		{name: "month 12", rule: MonthRule{}, mutate: func(r *ml.TrainingRow) { r.Month = 12 }, wantErr: false},
		{name: "month 0", rule: MonthRule{}, mutate: func(r *ml.TrainingRow) { r.Month = 0 }, wantErr: true},
		{name: "valid timestamps", rule: TimestampRule{}, mutate: func(*ml.TrainingRow) {}, wantErr: false},
		{name: "bad actual", rule: TimestampRule{}, mutate: func(r *ml.TrainingRow) { r.ActualDeparture = "?" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := valid
			tt.mutate(&row)
			err := tt.rule.Check(row)
			if (err != nil) != tt.wantErr {
				t.Errorf("%s.Check() error = %v, wantErr %v", tt.rule.Name(), err, tt.wantErr)
			}
		})
	}
}

func TestInspectKeepsRowsAndCountsIssues(t *testing.T) {
	rows := []ml.TrainingRow{
		{
			FlightRecord:       ml.FlightRecord{Airline: "Iberia", FlightType: ml.Internacional, Month: 4},
			ScheduledDeparture: "2017-04-01 10:00:00",
			ActualDeparture:    "2017-04-01 10:00:00",
		},
		{
			FlightRecord:       ml.FlightRecord{Airline: "Pan Am", FlightType: "X", Month: 13},
			ScheduledDeparture: "bad",
			ActualDeparture:    "2017-04-01 10:00:00",
		},
	}

	cleaner := NewDataCleaner(nil)
	stats := cleaner.Inspect(rows)

	if stats.TotalProcessed != 2 || stats.Clean != 1 || stats.Flagged != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	for _, name := range []string{"unknown_airline", "unknown_flight_type", "month_out_of_range", "malformed_timestamp"} {
		if stats.Issues[name] != 1 {
			t.Errorf("expected one %s issue, got %d", name, stats.Issues[name])
		}
	}

	issues := cleaner.GetIssues(2)
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(issues))
	}
	if issues[0].Row != 1 {
		t.Errorf("expected issue on row 1, got %d", issues[0].Row)
	}
	if got := len(cleaner.GetIssues(0)); got != 4 {
		t.Errorf("expected 4 issues in total, got %d", got)
	}
}
