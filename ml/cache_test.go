package ml

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictionCacheHitsAndMisses(t *testing.T) {
	predictor := NewDelayPredictor(PredictorOptions{}, nil)
	_, err := predictor.Fit(referenceRows())
	require.NoError(t, err)

	cache, err := NewPredictionCache(predictor, 16)
	require.NoError(t, err)

	records := []FlightRecord{delayProne, punctual, delayProne}
	first, generation := cache.Predict(records)
	assert.Equal(t, predictor.Predict(records), first)
	assert.Equal(t, predictor.Generation(), generation)
	hits, misses := cache.Stats()
	assert.Equal(t, uint64(0), hits)
	assert.Equal(t, uint64(3), misses)
	assert.Equal(t, 2, cache.Len())

	second, _ := cache.Predict(records)
	assert.Equal(t, first, second)
	hits, _ = cache.Stats()
	assert.Equal(t, uint64(3), hits)
}

func TestPredictionCacheUntrainedBypassesCache(t *testing.T) {
	predictor := NewDelayPredictor(PredictorOptions{}, nil)
	cache, err := NewPredictionCache(predictor, 16)
	require.NoError(t, err)

	labels, generation := cache.Predict([]FlightRecord{delayProne})
	assert.Equal(t, []DelayLabel{OnTime}, labels)
	assert.Zero(t, generation)
	assert.Zero(t, cache.Len())
}

func invertedRows(n int) []TrainingRow {
	rows := repeatRows(nil, delayProne, 0, n)
	return repeatRows(rows, punctual, time.Hour, n)
}

func TestPredictionCachePurgedOnRefit(t *testing.T) {
	predictor := NewDelayPredictor(PredictorOptions{}, nil)
	_, err := predictor.Fit(referenceRows())
	require.NoError(t, err)

	cache, err := NewPredictionCache(predictor, 16)
	require.NoError(t, err)
	labels, _ := cache.Predict([]FlightRecord{delayProne})
	assert.Equal(t, []DelayLabel{Delayed}, labels)

	_, err = predictor.Fit(invertedRows(50))
	require.NoError(t, err)

	labels, generation := cache.Predict([]FlightRecord{delayProne})
	assert.Equal(t, []DelayLabel{OnTime}, labels)
	assert.Equal(t, uint64(2), generation)
}

func TestPredictionCacheIgnoresLateInsertFromOldModel(t *testing.T) {
	predictor := NewDelayPredictor(PredictorOptions{}, nil)
	_, err := predictor.Fit(referenceRows())
	require.NoError(t, err)
	cache, err := NewPredictionCache(predictor, 16)
	require.NoError(t, err)
	_, oldGeneration := cache.Predict([]FlightRecord{punctual})

	_, err = predictor.Fit(invertedRows(50))
	require.NoError(t, err)
	labels, generation := cache.Predict([]FlightRecord{punctual})
	require.Equal(t, []DelayLabel{Delayed}, labels)

	// a request that predicted with the old model finishes after the refit
	cache.store(oldGeneration, delayProne, Delayed)
	cache.entries.Add(cacheKey{generation: oldGeneration, record: punctual}, OnTime)

	labels, again := cache.Predict([]FlightRecord{delayProne, punctual})
	assert.Equal(t, generation, again)
	assert.Equal(t, []DelayLabel{OnTime, Delayed}, labels)
}

func TestPredictionCacheConsistentUnderConcurrentRefit(t *testing.T) {
	predictor := NewDelayPredictor(PredictorOptions{ModelType: DecisionTreeModel}, nil)
	_, err := predictor.Fit(referenceRows())
	require.NoError(t, err)
	cache, err := NewPredictionCache(predictor, 16)
	require.NoError(t, err)

	datasets := [][]TrainingRow{referenceRows(), invertedRows(50)}
	expected := map[uint64][]DelayLabel{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 6; i++ {
			_, err := predictor.Fit(datasets[i%2])
			assert.NoError(t, err)
		}
	}()

	records := []FlightRecord{delayProne, punctual}
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				labels, generation := cache.Predict(records)
				mu.Lock()
				if prev, ok := expected[generation]; ok {
					assert.Equal(t, prev, labels, "generation %d", generation)
				} else {
					expected[generation] = labels
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	labels, _ := cache.Predict(records)
	assert.Equal(t, predictor.Predict(records), labels)
}

func TestPredictionCacheInvalidSize(t *testing.T) {
	_, err := NewPredictionCache(NewDelayPredictor(PredictorOptions{}, nil), 0)
	require.Error(t, err)
}
