// Package gatework provides the shared types (Config, sentinel errors,
// Context, WorkerInstanceID) used by the Gate and Worker halves of a split
// HTTP dispatch gateway.
//
// The Gate is a stateless HTTP frontend (package dispatcher plus package
// api) that turns inbound requests into HttpJob records and waits for a
// Worker to complete them. A Worker (package worker) polls its queue,
// executes registered handlers, and writes the response back. Gate and
// Worker never talk to each other directly — they coordinate entirely
// through a shared store (package store).
//
// # Quick Start
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	st := redis.New(client)
//	d := dispatcher.New(st, strategy.NewRoundRobin(st), gatework.DefaultConfig(), extensions, logger)
//	pool := worker.NewPool("v1", st, executor, extensions, logger)
//
// # Architecture
//
// Every entity crossing the store is a plain, JSON-serializable struct
// (httpjob.HttpJob, route.Route); worker_version is an opaque string
// chosen by whoever deploys a Worker, not a generated identifier.
package gatework
