package ml

import "time"

var (
	delayProne = FlightRecord{Airline: "Grupo LATAM", FlightType: Internacional, Month: 7}
	punctual   = FlightRecord{Airline: "Sky Airline", FlightType: Nacional, Month: 3}
)

func flightRow(record FlightRecord, delay time.Duration) TrainingRow {
	scheduled := time.Date(2017, time.Month(record.Month), 1, 10, 0, 0, 0, time.UTC)
	return TrainingRow{
		FlightRecord:       record,
		ScheduledDeparture: scheduled.Format(TimestampLayout),
		ActualDeparture:    scheduled.Add(delay).Format(TimestampLayout),
	}
}

func repeatRows(rows []TrainingRow, record FlightRecord, delay time.Duration, n int) []TrainingRow {
	for i := 0; i < n; i++ {
		rows = append(rows, flightRow(record, delay))
	}
	return rows
}

// referenceRows builds 1000 flights with an 18% delay rate. Most delays sit
// on delayProne flights, most on-time departures on punctual ones.
func referenceRows() []TrainingRow {
	rows := make([]TrainingRow, 0, 1000)
	rows = repeatRows(rows, delayProne, 40*time.Minute, 150)
	rows = repeatRows(rows, punctual, 25*time.Minute, 30)
	rows = repeatRows(rows, delayProne, 5*time.Minute, 50)
	rows = repeatRows(rows, punctual, 0, 770)
	return rows
}
