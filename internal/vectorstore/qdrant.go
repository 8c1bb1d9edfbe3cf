package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/memscreen/memscreend/internal/apperr"
	"github.com/memscreen/memscreend/internal/model"
)

// payloadOriginalID is the payload field storing a record's original,
// non-UUID id, since Qdrant only accepts UUID or integer point ids.
const payloadOriginalID = "_original_id"

type qdrantStore struct {
	mu          sync.Mutex
	client      *qdrant.Client
	dimensions  map[string]int
	retryAttn   uint
}

// NewQdrant connects to a Qdrant instance over its gRPC API (default port
// 6334). Collections are created lazily via EnsureCollection.
func NewQdrant(dsn string) (Store, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &qdrantStore{client: client, dimensions: make(map[string]int), retryAttn: 4}, nil
}

func (q *qdrantStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return apperr.Newf(apperr.InvalidArgument, "vector dimension must be > 0, got %d", dim)
	}
	return q.withRetry(ctx, func(ctx context.Context) error {
		exists, err := q.client.CollectionExists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			info, err := q.client.GetCollectionInfo(ctx, name)
			if err != nil {
				return err
			}
			if params := info.GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
				if int(params.GetSize()) != dim {
					return apperr.Newf(apperr.ConstraintViolation,
						"collection %s already has dimension %d, requested %d", name, params.GetSize(), dim)
				}
			}
			q.mu.Lock()
			q.dimensions[name] = dim
			q.mu.Unlock()
			return nil
		}
		if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return err
		}
		q.mu.Lock()
		q.dimensions[name] = dim
		q.mu.Unlock()
		return nil
	})
}

func pointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (q *qdrantStore) Upsert(ctx context.Context, collection string, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		uid := pointID(r.ID)
		payload := map[string]any{
			"recording_id": r.RecordingID,
			"t_offset":     r.TOffset,
			"source":       string(r.Source),
		}
		if uid != r.ID {
			payload[payloadOriginalID] = r.ID
		}
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uid),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		})
	}
	return q.withRetry(ctx, func(ctx context.Context) error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: collection, Points: points})
		return err
	})
}

func (q *qdrantStore) Query(ctx context.Context, collection string, vector []float32, k int, filter map[string]string) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var qFilter *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, qdrant.NewMatch(k, v))
		}
		qFilter = &qdrant.Filter{Must: must}
	}

	limit := uint64(k)
	var hits []*qdrant.ScoredPoint
	err := q.withRetry(ctx, func(ctx context.Context) error {
		res, err := q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collection,
			Query:          qdrant.NewQueryDense(vec),
			Limit:          &limit,
			Filter:         qFilter,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		hits = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		id := hit.Id.GetUuid()
		metadata := make(map[string]string)
		for k, v := range hit.Payload {
			if k == payloadOriginalID {
				id = v.GetStringValue()
				continue
			}
			metadata[k] = v.GetStringValue()
		}
		results = append(results, Result{ID: id, Score: float64(hit.Score), Metadata: metadata})
	}
	return results, nil
}

func (q *qdrantStore) DeleteByFilter(ctx context.Context, collection string, filter map[string]string) error {
	must := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		must = append(must, qdrant.NewMatch(k, v))
	}
	return q.withRetry(ctx, func(ctx context.Context) error {
		_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Points:         qdrant.NewPointsSelectorFilter(&qdrant.Filter{Must: must}),
		})
		return err
	})
}

func (q *qdrantStore) Close() error {
	return q.client.Close()
}

// withRetry retries transient Qdrant failures with bounded exponential
// backoff (spec §4.3: "transient backend errors are retried ... persistent
// failures are surfaced"). apperr-tagged errors (e.g. ConstraintViolation)
// are never retried.
func (q *qdrantStore) withRetry(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(
		func() error { return fn(ctx) },
		retry.Context(ctx),
		retry.Attempts(q.retryAttn),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.RetryIf(func(err error) bool {
			var e *apperr.E
			return !errors.As(err, &e)
		}),
	)
}
