// Package store aggregates the persistence contracts the Gate and Worker
// depend on: httpjob.Store, route.Store, strategy.Counter, plus the
// worker-queue and pub/sub primitives defined directly on [Store].
//
// # Available backends
//
//   - store/memory — in-memory store for tests and local development
//   - store/redis  — Redis-backed store for production use
//
// # Usage
//
//	import "github.com/relaymesh/gatework/store/redis"
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
package store
