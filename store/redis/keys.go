package redis

// Redis key naming conventions, reproduced verbatim from the external
// store schema (SPEC_FULL.md §7 / spec.md §6).

func jobKey(requestID string) string { return "httpjob:" + requestID }

func queueKey(workerVersion string) string { return "queue:" + workerVersion }

const routesIndexKey = "routes:index"

func routeKey(method, path string) string { return "routes:" + method + "|" + path }

func routeWorkerKey(workerVersion string) string { return "routes:worker:" + workerVersion }

func routeCursorKey(method, path string) string { return "route:cursor:" + method + "|" + path }

func routeLockKey(method, path string) string { return "route:lock:" + method + "|" + path }

func jobDoneChannel(requestID string) string { return "jobdone:" + requestID }

func heartbeatKey(workerVersion string) string { return "heartbeat:" + workerVersion }
