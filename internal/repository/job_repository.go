package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/osvaldoandrade/elqbulk/pkg/domain"

	"github.com/go-redis/redis/v8"
)

var ErrJobNotFound = errors.New("job not found")

type JobRepository interface {
	Create(ctx context.Context, job *domain.Job, idempotencyKey string) (*domain.Job, bool, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	UpdateProgress(ctx context.Context, id string, processed int, message string) error
	SaveResults(ctx context.Context, id string, results []domain.RowOutcome) error
	GetResults(ctx context.Context, id string) ([]domain.RowOutcome, error)
	List(ctx context.Context, limit int) ([]*domain.Job, error)
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)
	CleanupExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

type jobRedisRepo struct {
	rdb       *redis.Client
	tz        *time.Location
	retention time.Duration
}

const defaultIdempotencyRetention = 24 * time.Hour

// NewJobRepository stores jobs in Redis. retention bounds how long an
// idempotency key keeps pointing at its job.
func NewJobRepository(rdb *redis.Client, tz *time.Location, retention time.Duration) JobRepository {
	if tz == nil {
		tz = time.UTC
	}
	if retention <= 0 {
		retention = defaultIdempotencyRetention
	}
	return &jobRedisRepo{rdb: rdb, tz: tz, retention: retention}
}

// HASH: field = id, value = JSON
func (r *jobRedisRepo) keyJobsHash() string { return "elqbulk:jobs" }

// ZSET: member = id, score = createdAt (epoch ms)
func (r *jobRedisRepo) keyCreatedIndex() string { return "elqbulk:jobs:created" }

// ZSET: member = id, score = finishedAt (epoch s)
func (r *jobRedisRepo) keyFinishedIndex() string { return "elqbulk:jobs:finished" }

func (r *jobRedisRepo) keyResults(id string) string { return fmt.Sprintf("elqbulk:results:%s", id) }

func (r *jobRedisRepo) keyIdempotency(key string) string {
	return fmt.Sprintf("elqbulk:idempo:%s", key)
}

func (r *jobRedisRepo) now() time.Time { return time.Now().In(r.tz) }

func marshal(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalJob(jsonStr string) (*domain.Job, error) {
	var j domain.Job
	if err := json.Unmarshal([]byte(jsonStr), &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *jobRedisRepo) Create(ctx context.Context, job *domain.Job, idempotencyKey string) (*domain.Job, bool, error) {
	if idempotencyKey == "" {
		if err := r.insert(ctx, job); err != nil {
			return nil, false, err
		}
		return job, false, nil
	}

	idKey := r.keyIdempotency(idempotencyKey)
	if existingID, err := r.rdb.Get(ctx, idKey).Result(); err == nil && existingID != "" {
		if existing, err := r.Get(ctx, existingID); err == nil {
			return existing, true, nil
		}
		_ = r.rdb.Del(ctx, idKey).Err()
	}
	ok, err := r.rdb.SetNX(ctx, idKey, job.ID, r.retention).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis SETNX idempotency: %w", err)
	}
	if !ok {
		if existingID, err := r.rdb.Get(ctx, idKey).Result(); err == nil && existingID != "" {
			if existing, err := r.Get(ctx, existingID); err == nil {
				return existing, true, nil
			}
		}
		return nil, false, fmt.Errorf("idempotency conflict")
	}
	if err := r.insert(ctx, job); err != nil {
		_ = r.rdb.Del(ctx, idKey).Err()
		return nil, false, err
	}
	return job, false, nil
}

func (r *jobRedisRepo) insert(ctx context.Context, job *domain.Job) error {
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, r.keyJobsHash(), job.ID, marshal(job))
	pipe.ZAdd(ctx, r.keyCreatedIndex(), &redis.Z{Score: float64(job.CreatedAt.UnixMilli()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis insert job: %w", err)
	}
	return nil
}

func (r *jobRedisRepo) Get(ctx context.Context, id string) (*domain.Job, error) {
	js, err := r.rdb.HGet(ctx, r.keyJobsHash(), id).Result()
	if err == redis.Nil || (err == nil && js == "") {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("HGET job: %w", err)
	}
	j, err := unmarshalJob(js)
	if err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return j, nil
}

// updateJobScript replaces a stored job only while it still exists, so a
// write racing CleanupExpired cannot re-create an unindexed hash field.
var updateJobScript = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
if ARGV[3] ~= "" then
  redis.call("ZADD", KEYS[2], ARGV[3], ARGV[1])
end
return 1
`)

func (r *jobRedisRepo) Update(ctx context.Context, job *domain.Job) error {
	finished := ""
	if job.Status.Finished() && job.FinishedAt != nil {
		finished = strconv.FormatInt(job.FinishedAt.UTC().Unix(), 10)
	}
	return r.replace(ctx, job, finished)
}

func (r *jobRedisRepo) UpdateProgress(ctx context.Context, id string, processed int, message string) error {
	j, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	j.ProcessedRows = processed
	j.Progress = message
	j.UpdatedAt = r.now()
	return r.replace(ctx, j, "")
}

func (r *jobRedisRepo) replace(ctx context.Context, job *domain.Job, finishedScore string) error {
	keys := []string{r.keyJobsHash(), r.keyFinishedIndex()}
	n, err := updateJobScript.Run(ctx, r.rdb, keys, job.ID, marshal(job), finishedScore).Int()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *jobRedisRepo) SaveResults(ctx context.Context, id string, results []domain.RowOutcome) error {
	if results == nil {
		results = []domain.RowOutcome{}
	}
	return r.rdb.Set(ctx, r.keyResults(id), marshal(results), 0).Err()
}

func (r *jobRedisRepo) GetResults(ctx context.Context, id string) ([]domain.RowOutcome, error) {
	js, err := r.rdb.Get(ctx, r.keyResults(id)).Result()
	if err == redis.Nil {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GET results: %w", err)
	}
	var out []domain.RowOutcome
	if err := json.Unmarshal([]byte(js), &out); err != nil {
		return nil, fmt.Errorf("unmarshal results: %w", err)
	}
	return out, nil
}

func (r *jobRedisRepo) List(ctx context.Context, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := r.rdb.ZRevRange(ctx, r.keyCreatedIndex(), 0, int64(limit-1)).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*domain.Job{}, nil
	}
	vals, err := r.rdb.HMGet(ctx, r.keyJobsHash(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("HMGET jobs: %w", err)
	}
	out := make([]*domain.Job, 0, len(vals))
	for _, v := range vals {
		js, ok := v.(string)
		if !ok || js == "" {
			continue
		}
		if j, err := unmarshalJob(js); err == nil {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r *jobRedisRepo) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	vals, err := r.rdb.HVals(ctx, r.keyJobsHash()).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	counts := make(map[domain.JobStatus]int64)
	for _, js := range vals {
		var j struct {
			Status domain.JobStatus `json:"status"`
		}
		if json.Unmarshal([]byte(js), &j) == nil {
			counts[j.Status]++
		}
	}
	return counts, nil
}

func (r *jobRedisRepo) CleanupExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 1000
	}
	maxTS := strconv.FormatInt(before.UTC().Unix(), 10)
	zrange := &redis.ZRangeBy{Min: "-inf", Max: "(" + maxTS, Offset: 0, Count: int64(limit)}

	ids, err := r.rdb.ZRangeByScore(ctx, r.keyFinishedIndex(), zrange).Result()
	if err != nil && err != redis.Nil {
		return 0, err
	}
	deleted := 0
	for _, id := range ids {
		pipe := r.rdb.TxPipeline()
		pipe.HDel(ctx, r.keyJobsHash(), id)
		pipe.ZRem(ctx, r.keyCreatedIndex(), id)
		pipe.ZRem(ctx, r.keyFinishedIndex(), id)
		pipe.Del(ctx, r.keyResults(id))
		if _, err := pipe.Exec(ctx); err == nil {
			deleted++
		}
	}
	return deleted, nil
}
