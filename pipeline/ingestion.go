// Package pipeline loads the historical flight dataset used for training.
package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"flightdelay/ml"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Column names of the SCL dataset.
const (
	ColumnScheduled  = "Fecha-I"
	ColumnActual     = "Fecha-O"
	ColumnAirline    = "OPERA"
	ColumnFlightType = "TIPOVUELO"
	ColumnMonth      = "MES"
)

var requiredColumns = []string{ColumnScheduled, ColumnActual, ColumnAirline, ColumnFlightType, ColumnMonth}

type Encoding string

const (
	EncodingUTF8   Encoding = "utf8"
	EncodingLatin1 Encoding = "latin1"
)

type IngestionConfig struct {
	Encoding  Encoding `yaml:"encoding"`
	Delimiter rune     `yaml:"-"`
}

// IngestionStats counts what happened to the rows of one file.
type IngestionStats struct {
	TotalRows     int64     `json:"total_rows"`
	LoadedRows    int64     `json:"loaded_rows"`
	SkippedRows   int64     `json:"skipped_rows"`
	LastIngestion time.Time `json:"last_ingestion"`
}

// LoadTrainingFile opens path and hands it to LoadTrainingCSV.
func LoadTrainingFile(path string, config IngestionConfig) ([]ml.TrainingRow, IngestionStats, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, IngestionStats{}, err
	}
	defer file.Close()
	return LoadTrainingCSV(file, config)
}

// LoadTrainingCSV reads training rows from a CSV with a header line. Columns
// are located by name; rows whose month is not an integer are skipped.
// Timestamps are kept verbatim, label derivation decides what to do with
// unparseable ones.
func LoadTrainingCSV(r io.Reader, config IngestionConfig) ([]ml.TrainingRow, IngestionStats, error) {
	stats := IngestionStats{}
	reader, err := decodingReader(r, config.Encoding)
	if err != nil {
		return nil, stats, err
	}

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true
	csvReader.ReuseRecord = true
	if config.Delimiter != 0 {
		csvReader.Comma = config.Delimiter
	}

	header, err := csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, errors.New("training data has no header")
		}
		return nil, stats, fmt.Errorf("read header: %w", err)
	}
	columns, err := indexColumns(header)
	if err != nil {
		return nil, stats, err
	}

	rows := make([]ml.TrainingRow, 0)
	line := 1
	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, stats, fmt.Errorf("read line %d: %w", line, err)
		}
		stats.TotalRows++

		row, ok := parseRow(record, columns)
		if !ok {
			stats.SkippedRows++
			continue
		}
		rows = append(rows, row)
		stats.LoadedRows++
	}

	stats.LastIngestion = time.Now()
	return rows, stats, nil
}

func decodingReader(r io.Reader, encoding Encoding) (io.Reader, error) {
	switch encoding {
	case EncodingUTF8, "":
		return r, nil
	case EncodingLatin1:
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

func indexColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		columns[name] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("training data is missing column %q", name)
		}
	}
	return columns, nil
}

func parseRow(record []string, columns map[string]int) (ml.TrainingRow, bool) {
	field := func(name string) (string, bool) {
		idx := columns[name]
		if idx >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[idx]), true
	}

	values := make(map[string]string, len(requiredColumns))
	for _, name := range requiredColumns {
		value, ok := field(name)
		if !ok {
			return ml.TrainingRow{}, false
		}
		values[name] = value
	}

	month, err := strconv.Atoi(values[ColumnMonth])
	if err != nil {
		return ml.TrainingRow{}, false
	}

	return ml.TrainingRow{
		FlightRecord: ml.FlightRecord{
			Airline:    values[ColumnAirline],
			FlightType: ml.FlightType(values[ColumnFlightType]),
			Month:      month,
		},
		ScheduledDeparture: values[ColumnScheduled],
		ActualDeparture:    values[ColumnActual],
	}, true
}
