// Package envconfig parses the environment variables named in
// SPEC_FULL.md §7 into the values cmd/gate and cmd/worker need to
// construct a store client and a gatework.Config. Library packages never
// read the environment directly; only the two binaries call here.
package envconfig

import (
	"crypto/tls"
	"os"
	"strconv"
	"time"

	"github.com/relaymesh/gatework"
)

// Env holds the raw configuration values read from the process
// environment.
type Env struct {
	StoreHost     string
	StorePort     int
	StoreDB       int
	StorePassword string
	StoreUseTLS   bool

	GatePort int

	DispatchTimeoutMS int

	Strategy string
}

// Load reads the environment into an Env, applying the defaults named in
// SPEC_FULL.md §7 for anything unset.
func Load() Env {
	return Env{
		StoreHost:         getString("STORE_HOST", "localhost"),
		StorePort:         getInt("STORE_PORT", 6379),
		StoreDB:           getInt("STORE_DB", 0),
		StorePassword:     getString("STORE_PASSWORD", ""),
		StoreUseTLS:       getBool("STORE_USE_TLS", false),
		GatePort:          getInt("GATE_PORT", 9000),
		DispatchTimeoutMS: getInt("DISPATCH_TIMEOUT_MS", 30000),
		Strategy:          getString("STRATEGY", "round_robin"),
	}
}

// StoreAddr returns the "host:port" address of the shared store.
func (e Env) StoreAddr() string {
	return e.StoreHost + ":" + strconv.Itoa(e.StorePort)
}

// StoreTLSConfig returns a minimal TLS config when STORE_USE_TLS is set,
// or nil otherwise.
func (e Env) StoreTLSConfig() *tls.Config {
	if !e.StoreUseTLS {
		return nil
	}
	return &tls.Config{ServerName: e.StoreHost, MinVersion: tls.VersionTLS12}
}

// GateAddr returns the ":port" address the Gate's HTTP server binds to.
func (e Env) GateAddr() string {
	return ":" + strconv.Itoa(e.GatePort)
}

// GateConfig derives a gatework.Config from the environment, overriding
// DefaultConfig's DispatchTimeout with DISPATCH_TIMEOUT_MS and its
// Strategy with STRATEGY.
func (e Env) GateConfig() gatework.Config {
	cfg := gatework.DefaultConfig()
	cfg.DispatchTimeout = time.Duration(e.DispatchTimeoutMS) * time.Millisecond
	cfg.Strategy = e.Strategy
	return cfg
}

// WorkerConfig derives a gatework.Config for the Worker binary. The
// Worker does not use DispatchTimeout (that is a Gate-side concern) but
// shares every other default.
func (e Env) WorkerConfig() gatework.Config {
	return gatework.DefaultConfig()
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
