package ml

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// PredictorOptions selects the classifier and the delay threshold used to
// derive labels.
type PredictorOptions struct {
	ModelType      ModelType
	Params         ModelParams
	DelayThreshold time.Duration
}

// FitReport summarises the data a model was trained on.
type FitReport struct {
	ModelType           ModelType `json:"model_type"`
	Rows                int       `json:"rows"`
	Positives           int       `json:"positives"`
	Negatives           int       `json:"negatives"`
	MalformedTimestamps int       `json:"malformed_timestamps"`
	ScalePosWeight      float64   `json:"scale_pos_weight"`
	TrainedAt           time.Time `json:"trained_at"`
}

type trainedModel struct {
	model      MLModel
	report     FitReport
	generation uint64
}

// DelayPredictor owns the trained classifier. Fit and Load swap the model
// atomically; Predict only reads the current one and is safe for concurrent
// use.
type DelayPredictor struct {
	encoder    FeatureEncoder
	opts       PredictorOptions
	logger     *zap.Logger
	current    atomic.Pointer[trainedModel]
	generation atomic.Uint64
}

// NewDelayPredictor returns an untrained predictor. Zero options fall back to
// logistic regression and a 15 minute threshold.
func NewDelayPredictor(opts PredictorOptions, logger *zap.Logger) *DelayPredictor {
	if opts.ModelType == "" {
		opts.ModelType = LogisticRegressionModel
	}
	if opts.DelayThreshold <= 0 {
		opts.DelayThreshold = DefaultDelayThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DelayPredictor{
		encoder: NewFeatureEncoder(),
		opts:    opts,
		logger:  logger,
	}
}

// Fit derives delay labels from the rows, weights the positive class by
// negatives/positives and trains a fresh classifier that replaces the
// current one.
func (p *DelayPredictor) Fit(rows []TrainingRow) (FitReport, error) {
	if len(rows) == 0 {
		return FitReport{}, ErrEmptyDataset
	}

	labels, malformed := GenerateLabels(rows, p.opts.DelayThreshold)
	records := make([]FlightRecord, len(rows))
	for i, row := range rows {
		records[i] = row.FlightRecord
	}
	features := p.encoder.Encode(records)

	negatives, positives := countClasses(labels)
	scale := 1.0
	if positives > 0 {
		scale = float64(negatives) / float64(positives)
	}
	weights := make([]float64, len(labels))
	for i, label := range labels {
		weights[i] = 1
		if label == 1 {
			weights[i] = scale
		}
	}

	model, err := NewModel(p.opts.ModelType, p.opts.Params)
	if err != nil {
		return FitReport{}, err
	}
	if err := model.Train(features, labels, weights); err != nil {
		return FitReport{}, fmt.Errorf("train %s: %w", p.opts.ModelType, err)
	}

	report := FitReport{
		ModelType:           p.opts.ModelType,
		Rows:                len(rows),
		Positives:           positives,
		Negatives:           negatives,
		MalformedTimestamps: malformed,
		ScalePosWeight:      scale,
		TrainedAt:           time.Now().UTC(),
	}
	p.publish(model, report)

	p.logger.Info("model fitted",
		zap.String("model_type", string(report.ModelType)),
		zap.Int("rows", report.Rows),
		zap.Int("positives", report.Positives),
		zap.Int("malformed_timestamps", report.MalformedTimestamps),
		zap.Float64("scale_pos_weight", report.ScalePosWeight),
	)
	return report, nil
}

// Predict returns one label per record. An untrained predictor answers
// OnTime for every record.
func (p *DelayPredictor) Predict(records []FlightRecord) []DelayLabel {
	return p.predictWith(p.current.Load(), records)
}

// PredictWithGeneration is Predict that also reports the generation of the
// model that produced the labels, zero when untrained.
func (p *DelayPredictor) PredictWithGeneration(records []FlightRecord) ([]DelayLabel, uint64) {
	current := p.current.Load()
	labels := p.predictWith(current, records)
	if current == nil {
		return labels, 0
	}
	return labels, current.generation
}

func (p *DelayPredictor) predictWith(current *trainedModel, records []FlightRecord) []DelayLabel {
	labels := make([]DelayLabel, len(records))
	if current == nil {
		return labels
	}
	for i, record := range records {
		label, _, err := current.model.Predict(p.encoder.EncodeOne(record))
		if err != nil {
			p.logger.Warn("prediction failed, defaulting to on-time",
				zap.Any("record", record),
				zap.Error(err),
			)
			continue
		}
		labels[i] = DelayLabel(label)
	}
	return labels
}

// Trained reports whether a model has been fitted or loaded.
func (p *DelayPredictor) Trained() bool {
	return p.current.Load() != nil
}

// Generation identifies the published model; it increases with every Fit or
// Load and is zero while untrained.
func (p *DelayPredictor) Generation() uint64 {
	if current := p.current.Load(); current != nil {
		return current.generation
	}
	return 0
}

// Report returns the fit report of the current model.
func (p *DelayPredictor) Report() (FitReport, bool) {
	current := p.current.Load()
	if current == nil {
		return FitReport{}, false
	}
	return current.report, true
}

// ModelType is the type of the current model, or the configured one while
// untrained.
func (p *DelayPredictor) ModelType() ModelType {
	if current := p.current.Load(); current != nil {
		return current.report.ModelType
	}
	return p.opts.ModelType
}

// Encoder returns the encoder every model of this predictor is fitted with.
func (p *DelayPredictor) Encoder() FeatureEncoder {
	return p.encoder
}

type predictorArtifact struct {
	ModelType ModelType       `json:"model_type"`
	Features  []string        `json:"features"`
	Report    FitReport       `json:"report"`
	Model     json.RawMessage `json:"model"`
}

// Save writes the trained classifier together with the feature layout it
// expects.
func (p *DelayPredictor) Save(path string) error {
	current := p.current.Load()
	if current == nil {
		return ErrNotTrained
	}
	model, err := json.Marshal(current.model)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	return saveJSON(path, predictorArtifact{
		ModelType: current.report.ModelType,
		Features:  p.encoder.FeatureNames(),
		Report:    current.report,
		Model:     model,
	})
}

// Load replaces the current classifier with the one stored at path. The
// artifact is rejected when its feature layout differs from the encoder's.
func (p *DelayPredictor) Load(path string) error {
	var artifact predictorArtifact
	if err := loadJSON(path, &artifact); err != nil {
		return fmt.Errorf("read artifact %s: %w", path, err)
	}
	if !slices.Equal(artifact.Features, p.encoder.FeatureNames()) {
		return fmt.Errorf("artifact %s: feature layout %v does not match encoder", path, artifact.Features)
	}
	model, err := NewModel(artifact.ModelType, ModelParams{})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(artifact.Model, model); err != nil {
		return fmt.Errorf("decode %s model: %w", artifact.ModelType, err)
	}
	if _, _, err := model.Predict(make([]float64, p.encoder.Width())); err != nil {
		return fmt.Errorf("artifact %s: %w", path, err)
	}
	if artifact.Report.ModelType == "" {
		artifact.Report.ModelType = artifact.ModelType
	}
	p.publish(model, artifact.Report)
	p.logger.Info("model loaded",
		zap.String("path", path),
		zap.String("model_type", string(artifact.ModelType)),
	)
	return nil
}

func (p *DelayPredictor) publish(model MLModel, report FitReport) {
	generation := p.generation.Add(1)
	p.current.Store(&trainedModel{model: model, report: report, generation: generation})
}

func countClasses(labels []int) (negatives, positives int) {
	for _, label := range labels {
		if label == 1 {
			positives++
		} else {
			negatives++
		}
	}
	return negatives, positives
}
