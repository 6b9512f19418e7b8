package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/relaymesh/gatework"
	"github.com/relaymesh/gatework/route"
)

// routeLockTTL is the TTL on the short-lived lock acquired around a route
// registration write, per spec.md's explicit guidance (atomic
// set-if-not-exists with TTL) and ported from the SET NX EX pattern in
// the lock helper of the system this gateway replaces.
const routeLockTTL = 2 * time.Second

// Register is idempotent per (method, path, workerVersion). It acquires
// routeLockKey(method, path) before writing so two workers registering
// the same route concurrently serialize rather than race; the lock is a
// mitigation, not a full consensus mechanism (see SPEC_FULL.md §5.3).
func (s *Store) Register(ctx context.Context, workerVersion, method, path string) error {
	lockKey := routeLockKey(method, path)
	lockID := workerVersion + ":" + method + ":" + path

	ok, err := s.client.SetNX(ctx, lockKey, lockID, routeLockTTL).Result()
	if err != nil {
		return fmt.Errorf("gatework/redis: register acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("gatework/redis: register %s %s by %s: %w", method, path, workerVersion, gatework.ErrRouteLocked)
	}
	defer func() {
		// Best-effort ownership-checked release; a stale lock simply
		// expires on its own TTL.
		val, getErr := s.client.Get(ctx, lockKey).Result()
		if getErr == nil && val == lockID {
			s.client.Del(ctx, lockKey)
		}
	}()

	pair := method + "|" + path
	now := time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, routesIndexKey, pair)
	pipe.SAdd(ctx, routeKey(method, path), workerVersion)
	pipe.SAdd(ctx, routeWorkerKey(workerVersion), pair)
	pipe.Set(ctx, heartbeatKey(workerVersion), now, 30*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("gatework/redis: register: %w", err)
	}
	return nil
}

// Deregister removes a single (method, path, workerVersion) entry.
func (s *Store) Deregister(ctx context.Context, workerVersion, method, path string) error {
	pair := method + "|" + path

	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, routeKey(method, path), workerVersion)
	pipe.SRem(ctx, routeWorkerKey(workerVersion), pair)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("gatework/redis: deregister: %w", err)
	}

	remaining, err := s.client.SCard(ctx, routeKey(method, path)).Result()
	if err != nil {
		return fmt.Errorf("gatework/redis: deregister check remaining: %w", err)
	}
	if remaining == 0 {
		s.client.SRem(ctx, routesIndexKey, pair)
	}
	return nil
}

// DeregisterWorker removes every route workerVersion advertised, using the
// per-worker reverse index to avoid scanning the full route set.
func (s *Store) DeregisterWorker(ctx context.Context, workerVersion string) error {
	pairs, err := s.client.SMembers(ctx, routeWorkerKey(workerVersion)).Result()
	if err != nil {
		return fmt.Errorf("gatework/redis: deregister worker smembers: %w", err)
	}

	for _, pair := range pairs {
		method, path, ok := strings.Cut(pair, "|")
		if !ok {
			continue
		}
		if err := s.Deregister(ctx, workerVersion, method, path); err != nil {
			return err
		}
	}

	s.client.Del(ctx, routeWorkerKey(workerVersion))
	s.client.Del(ctx, heartbeatKey(workerVersion))
	return nil
}

// Match returns the candidate worker_versions for an exact (method, path).
func (s *Store) Match(ctx context.Context, method, path string) ([]string, error) {
	members, err := s.client.SMembers(ctx, routeKey(method, path)).Result()
	if err != nil {
		return nil, fmt.Errorf("gatework/redis: match: %w", err)
	}
	return members, nil
}

// ListAll returns every registered route, reconstructed from the index.
func (s *Store) ListAll(ctx context.Context) ([]route.Route, error) {
	pairs, err := s.client.SMembers(ctx, routesIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("gatework/redis: list all smembers: %w", err)
	}

	var routes []route.Route
	for _, pair := range pairs {
		method, path, ok := strings.Cut(pair, "|")
		if !ok {
			continue
		}
		workers, err := s.client.SMembers(ctx, routeKey(method, path)).Result()
		if err != nil {
			return nil, fmt.Errorf("gatework/redis: list all workers: %w", err)
		}
		for _, w := range workers {
			hb, _ := s.client.Get(ctx, heartbeatKey(w)).Result() //nolint:errcheck // absent heartbeat is not an error
			var lastHeartbeat time.Time
			if hb != "" {
				lastHeartbeat, _ = time.Parse(time.RFC3339Nano, hb) //nolint:errcheck // best-effort parse
			}
			routes = append(routes, route.Route{
				Method:          method,
				Path:            path,
				WorkerVersion:   w,
				LastHeartbeatAt: lastHeartbeat,
			})
		}
	}
	return routes, nil
}

// Heartbeat refreshes the TTL-bound heartbeat:<worker_version> key.
func (s *Store) Heartbeat(ctx context.Context, workerVersion string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.client.Set(ctx, heartbeatKey(workerVersion), now, 30*time.Second).Err(); err != nil {
		return fmt.Errorf("gatework/redis: heartbeat: %w", err)
	}
	return nil
}
