package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"flightdelay/ml"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50) NOT NULL,
        accuracy REAL,
        precision REAL,
        recall REAL,
        f1 REAL,
        scale_pos_weight REAL,
        data_points INTEGER,
        trained_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id TEXT NOT NULL,
        position INTEGER NOT NULL,
        airline TEXT NOT NULL,
        flight_type TEXT NOT NULL,
        month INTEGER NOT NULL,
        predicted_label INTEGER NOT NULL,
        model_generation INTEGER NOT NULL,
        created_at DATETIME NOT NULL,
        UNIQUE(request_id, position)
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_request ON predictions(request_id);
    `

// Store persists training runs and served predictions in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates the database file and its tables if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// TrainingLog is one row of the training_log table.
type TrainingLog struct {
	ModelName      string    `json:"model_name"`
	Accuracy       float64   `json:"accuracy"`
	Precision      float64   `json:"precision"`
	Recall         float64   `json:"recall"`
	F1             float64   `json:"f1"`
	ScalePosWeight float64   `json:"scale_pos_weight"`
	DataPoints     int       `json:"data_points"`
	TrainedAt      time.Time `json:"trained_at"`
}

// NewTrainingLog combines a fit report with the evaluation of the held-out
// rows.
func NewTrainingLog(fit ml.FitReport, eval ml.Report) TrainingLog {
	return TrainingLog{
		ModelName:      string(fit.ModelType),
		Accuracy:       eval.Accuracy,
		Precision:      eval.Precision,
		Recall:         eval.Recall,
		F1:             eval.F1,
		ScalePosWeight: fit.ScalePosWeight,
		DataPoints:     fit.Rows,
		TrainedAt:      fit.TrainedAt,
	}
}

// SaveTrainingLog appends a training run.
func (s *Store) SaveTrainingLog(ctx context.Context, log TrainingLog) error {
	if log.TrainedAt.IsZero() {
		log.TrainedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (
            model_name, accuracy, precision, recall, f1, scale_pos_weight, data_points, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ModelName, log.Accuracy, log.Precision, log.Recall, log.F1, log.ScalePosWeight, log.DataPoints, log.TrainedAt.UTC())
	return err
}

// LoadTrainingLog returns training runs, newest first.
func (s *Store) LoadTrainingLog(ctx context.Context, limit int) ([]TrainingLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT model_name, accuracy, precision, recall, f1, scale_pos_weight, data_points, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.ModelName, &log.Accuracy, &log.Precision, &log.Recall, &log.F1,
			&log.ScalePosWeight, &log.DataPoints, &log.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// LatestTrainingLog returns the newest run, or sql.ErrNoRows when none was
// recorded.
func (s *Store) LatestTrainingLog(ctx context.Context) (TrainingLog, error) {
	logs, err := s.LoadTrainingLog(ctx, 1)
	if err != nil {
		return TrainingLog{}, err
	}
	if len(logs) == 0 {
		return TrainingLog{}, sql.ErrNoRows
	}
	return logs[0], nil
}

// PredictionRecord is one stored flight and the label it was given.
type PredictionRecord struct {
	RequestID  string          `json:"request_id"`
	Flight     ml.FlightRecord `json:"flight"`
	Label      ml.DelayLabel   `json:"label"`
	Generation uint64          `json:"model_generation"`
	CreatedAt  time.Time       `json:"created_at"`
}

// SavePredictions stores one batch answered under requestID in a single
// transaction.
func (s *Store) SavePredictions(ctx context.Context, requestID string, generation uint64, records []ml.FlightRecord, labels []ml.DelayLabel) error {
	if requestID == "" {
		return errors.New("request id required")
	}
	if len(records) != len(labels) {
		return errors.New("records/labels length mismatch")
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO predictions (
            request_id, position, airline, flight_type, month, predicted_label, model_generation, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, record := range records {
		if _, err := stmt.ExecContext(ctx, requestID, i, record.Airline, string(record.FlightType), record.Month,
			int(labels[i]), int64(generation), now); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LoadPredictions returns the flights of one request in submission order.
func (s *Store) LoadPredictions(ctx context.Context, requestID string) ([]PredictionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT request_id, airline, flight_type, month, predicted_label, model_generation, created_at
        FROM predictions
        WHERE request_id = ?
        ORDER BY position`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var r PredictionRecord
		var flightType string
		var generation int64
		if err := rows.Scan(&r.RequestID, &r.Flight.Airline, &flightType, &r.Flight.Month, &r.Label, &generation, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Flight.FlightType = ml.FlightType(flightType)
		r.Generation = uint64(generation)
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountPredictions returns the number of per-flight predictions recorded.
func (s *Store) CountPredictions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&count)
	return count, err
}
