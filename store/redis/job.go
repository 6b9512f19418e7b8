package redis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/relaymesh/gatework"
	"github.com/relaymesh/gatework/httpjob"
)

// CreateJob stores the job as a Hash with the given TTL.
func (s *Store) CreateJob(ctx context.Context, j *httpjob.HttpJob, ttl time.Duration) error {
	key := jobKey(j.RequestID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("gatework/redis: create job exists: %w", err)
	}
	if exists > 0 {
		return gatework.ErrJobAlreadyExists
	}

	fields := jobToMap(j)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("gatework/redis: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by request_id.
func (s *Store) GetJob(ctx context.Context, requestID string) (*httpjob.HttpJob, error) {
	return s.getJobByKey(ctx, jobKey(requestID))
}

// UpdateJob overwrites an existing job's fields, preserving its TTL.
func (s *Store) UpdateJob(ctx context.Context, j *httpjob.HttpJob) error {
	key := jobKey(j.RequestID)

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("gatework/redis: update job ttl: %w", err)
	}
	if ttl < 0 {
		return gatework.ErrJobNotFound
	}

	j.UpdatedAt = time.Now().UTC()
	fields := jobToMap(j)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("gatework/redis: update job: %w", err)
	}
	return nil
}

// CompareAndSwapState transitions a job's state only if its currently
// stored state matches from, using WATCH to detect concurrent writers
// racing the same job (e.g. two worker goroutines popping the same
// request_id, or a dispatcher timeout racing a worker's completion).
func (s *Store) CompareAndSwapState(ctx context.Context, requestID string, from, to httpjob.State) (*httpjob.HttpJob, error) {
	key := jobKey(requestID)

	txf := func(tx *goredis.Tx) error {
		current, err := s.getJobByKeyTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if current.State != from {
			return gatework.ErrInvalidStateTransition
		}

		current.State = to
		current.UpdatedAt = time.Now().UTC()
		fields := jobToMap(current)

		ttl, ttlErr := tx.TTL(ctx, key).Result()
		if ttlErr != nil {
			return ttlErr
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			if ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
			return nil
		})
		return err
	}

	err := s.client.(interface {
		Watch(context.Context, func(*goredis.Tx) error, ...string) error
	}).Watch(ctx, txf, key)
	if err != nil {
		if errors.Is(err, gatework.ErrInvalidStateTransition) {
			current, getErr := s.getJobByKey(ctx, key)
			if getErr != nil {
				return nil, getErr
			}
			return current, err
		}
		return nil, err
	}
	return s.getJobByKey(ctx, key)
}

// DeleteJob removes a job unconditionally.
func (s *Store) DeleteJob(ctx context.Context, requestID string) error {
	n, err := s.client.Del(ctx, jobKey(requestID)).Result()
	if err != nil {
		return fmt.Errorf("gatework/redis: delete job: %w", err)
	}
	if n == 0 {
		return gatework.ErrJobNotFound
	}
	return nil
}

// QueueSize returns the depth of a worker's queue.
func (s *Store) QueueSize(ctx context.Context, workerVersion string) (int64, error) {
	n, err := s.client.LLen(ctx, queueKey(workerVersion)).Result()
	if err != nil {
		return 0, fmt.Errorf("gatework/redis: queue size: %w", err)
	}
	return n, nil
}

// QueuePush appends requestID to the named worker queue.
func (s *Store) QueuePush(ctx context.Context, queue, requestID string) error {
	if err := s.client.RPush(ctx, queueKey(queue), requestID).Err(); err != nil {
		return fmt.Errorf("gatework/redis: queue push: %w", err)
	}
	return nil
}

// QueuePopBlocking pops the head of the named worker queue, blocking up to
// timeout. Returns "", nil on timeout.
func (s *Store) QueuePopBlocking(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	res, err := s.client.BLPop(ctx, timeout, queueKey(queue)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("gatework/redis: queue pop: %w", err)
	}
	// BLPop returns [key, value].
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// AtomicIncrement implements strategy.Counter.
func (s *Store) AtomicIncrement(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("gatework/redis: atomic increment: %w", err)
	}
	return n, nil
}

// Publish sends an empty completion signal on the named channel.
func (s *Store) Publish(ctx context.Context, channel string) error {
	if err := s.client.Publish(ctx, channel, "").Err(); err != nil {
		return fmt.Errorf("gatework/redis: publish: %w", err)
	}
	return nil
}

// Subscribe returns a channel fed by Redis pub/sub messages on channel,
// and a cancel func the caller must invoke to release the subscription.
func (s *Store) Subscribe(ctx context.Context, channel string) (<-chan struct{}, func(), error) {
	client, ok := s.client.(*goredis.Client)
	if !ok {
		return nil, nil, errors.New("gatework/redis: subscribe requires a *redis.Client")
	}

	sub := client.Subscribe(ctx, channel)
	out := make(chan struct{}, 1)

	go func() {
		ch := sub.Channel()
		for range ch {
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()

	cancel := func() {
		_ = sub.Close()
	}
	return out, cancel, nil
}

// ── helpers ──

func jobToMap(j *httpjob.HttpJob) map[string]any {
	return map[string]any{
		"request_id":       j.RequestID,
		"method":           j.Method,
		"path":             j.Path,
		"query":            marshalJSON(j.Query),
		"headers":          marshalJSON(j.Headers),
		"body":             base64.StdEncoding.EncodeToString(j.Body),
		"target_worker":    j.TargetWorker,
		"state":            string(j.State),
		"response_status":  strconv.Itoa(j.ResponseStatus),
		"response_headers": marshalJSON(j.ResponseHeaders),
		"response_body":    base64.StdEncoding.EncodeToString(j.ResponseBody),
		"error":            j.Error,
		"created_at":       j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":       j.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func mapToJob(m map[string]string) (*httpjob.HttpJob, error) {
	if len(m) == 0 {
		return nil, gatework.ErrJobNotFound
	}

	status, _ := strconv.Atoi(m["response_status"]) //nolint:errcheck // best-effort parse from trusted store data
	body, _ := base64.StdEncoding.DecodeString(m["body"])
	responseBody, _ := base64.StdEncoding.DecodeString(m["response_body"])
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted store data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted store data

	return &httpjob.HttpJob{
		RequestID:       m["request_id"],
		Method:          m["method"],
		Path:            m["path"],
		Query:           unmarshalMap(m["query"]),
		Headers:         unmarshalMap(m["headers"]),
		Body:            body,
		TargetWorker:    m["target_worker"],
		State:           httpjob.State(m["state"]),
		ResponseStatus:  status,
		ResponseHeaders: unmarshalMap(m["response_headers"]),
		ResponseBody:    responseBody,
		Error:           m["error"],
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*httpjob.HttpJob, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("gatework/redis: get job: %w", err)
	}
	return mapToJob(vals)
}

func (s *Store) getJobByKeyTx(ctx context.Context, tx *goredis.Tx, key string) (*httpjob.HttpJob, error) {
	vals, err := tx.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("gatework/redis: get job (tx): %w", err)
	}
	return mapToJob(vals)
}

func marshalJSON(v any) string {
	b, _ := json.Marshal(v) //nolint:errcheck // marshal should not fail for plain maps
	return string(b)
}

func unmarshalMap(s string) map[string]string {
	if s == "" || s == "null" {
		return nil
	}
	out := make(map[string]string)
	_ = json.Unmarshal([]byte(s), &out) //nolint:errcheck // best-effort parse from trusted store data
	return out
}
