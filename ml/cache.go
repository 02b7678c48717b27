package ml

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheKey struct {
	generation uint64
	record     FlightRecord
}

// PredictionCache memoises per-record labels of a DelayPredictor. Entries are
// keyed by model generation, so a label is only ever served for the model
// that produced it; older generations are purged when a new model shows up.
type PredictionCache struct {
	predictor *DelayPredictor
	entries   *lru.Cache[cacheKey, DelayLabel]

	mu         sync.Mutex
	generation uint64

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewPredictionCache wraps predictor with an LRU of size entries.
func NewPredictionCache(predictor *DelayPredictor, size int) (*PredictionCache, error) {
	entries, err := lru.New[cacheKey, DelayLabel](size)
	if err != nil {
		return nil, err
	}
	return &PredictionCache{
		predictor:  predictor,
		entries:    entries,
		generation: predictor.Generation(),
	}, nil
}

// Predict answers from the cache where possible and returns the labels with
// the generation of the model that produced all of them.
func (c *PredictionCache) Predict(records []FlightRecord) ([]DelayLabel, uint64) {
	current := c.predictor.current.Load()
	if current == nil {
		return c.predictor.predictWith(nil, records), 0
	}
	generation := current.generation
	c.advance(generation)

	labels := make([]DelayLabel, len(records))
	missIdx := make([]int, 0)
	missRecords := make([]FlightRecord, 0)
	for i, record := range records {
		if label, ok := c.entries.Get(cacheKey{generation: generation, record: record}); ok {
			labels[i] = label
			c.hits.Add(1)
			continue
		}
		missIdx = append(missIdx, i)
		missRecords = append(missRecords, record)
	}
	if len(missRecords) == 0 {
		return labels, generation
	}
	c.misses.Add(uint64(len(missRecords)))

	predicted := c.predictor.predictWith(current, missRecords)
	for j, idx := range missIdx {
		labels[idx] = predicted[j]
		c.store(generation, missRecords[j], predicted[j])
	}
	return labels, generation
}

// advance purges the cache the first time a newer generation is seen.
// Generations only grow, so a late caller holding an older model never
// triggers a purge.
func (c *PredictionCache) advance(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation > c.generation {
		c.entries.Purge()
		c.generation = generation
	}
}

// store adds an entry unless its model has already been superseded.
func (c *PredictionCache) store(generation uint64, record FlightRecord, label DelayLabel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation < c.generation {
		return
	}
	c.entries.Add(cacheKey{generation: generation, record: record}, label)
}

// Len is the number of cached entries.
func (c *PredictionCache) Len() int {
	return c.entries.Len()
}

// Stats returns the cumulative hit and miss counts.
func (c *PredictionCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
