package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/memscreen/memscreend/internal/apperr"
	"github.com/memscreen/memscreend/internal/model"
)

type memoryRecord struct {
	vector      []float32
	recordingID string
	tOffset     float64
	source      model.VectorSource
}

// memoryStore is an in-process Store used for tests and as the degraded
// fallback when no Qdrant dsn is configured.
type memoryStore struct {
	mu          sync.RWMutex
	dimensions  map[string]int
	collections map[string]map[string]memoryRecord
}

// NewMemory returns an in-memory Store.
func NewMemory() Store {
	return &memoryStore{
		dimensions:  make(map[string]int),
		collections: make(map[string]map[string]memoryRecord),
	}
}

func (m *memoryStore) EnsureCollection(_ context.Context, name string, dim int) error {
	if dim <= 0 {
		return apperr.Newf(apperr.InvalidArgument, "vector dimension must be > 0, got %d", dim)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.dimensions[name]; ok {
		if existing != dim {
			return apperr.Newf(apperr.ConstraintViolation,
				"collection %s already has dimension %d, requested %d", name, existing, dim)
		}
		return nil
	}
	m.dimensions[name] = dim
	m.collections[name] = make(map[string]memoryRecord)
	return nil
}

func (m *memoryStore) Upsert(_ context.Context, collection string, records []model.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.collections[collection]
	if !ok {
		return apperr.Newf(apperr.NotFound, "collection %s not found", collection)
	}
	for _, r := range records {
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		rows[r.ID] = memoryRecord{vector: vec, recordingID: r.RecordingID, tOffset: r.TOffset, source: r.Source}
	}
	return nil
}

func (m *memoryStore) Query(_ context.Context, collection string, vector []float32, k int, filter map[string]string) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, ok := m.collections[collection]
	if !ok {
		return nil, nil
	}

	type scored struct {
		id    string
		score float64
		row   memoryRecord
	}
	var candidates []scored
	for id, row := range rows {
		if rid, ok := filter["recording_id"]; ok && rid != row.recordingID {
			continue
		}
		if src, ok := filter["source"]; ok && src != string(row.source) {
			continue
		}
		candidates = append(candidates, scored{id: id, score: cosineSimilarity(vector, row.vector), row: row})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id // tie-break by id per spec §4.3
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, Result{
			ID:    c.id,
			Score: c.score,
			Metadata: map[string]string{
				"recording_id": c.row.recordingID,
				"source":       string(c.row.source),
			},
		})
	}
	return results, nil
}

func (m *memoryStore) DeleteByFilter(_ context.Context, collection string, filter map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.collections[collection]
	if !ok {
		return nil
	}
	for id, row := range rows {
		if rid, ok := filter["recording_id"]; ok && rid != row.recordingID {
			continue
		}
		delete(rows, id)
	}
	return nil
}

func (m *memoryStore) Close() error { return nil }

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
