package config

import "time"

// ReadHeaderTimeout limits how long the status server waits for request headers.
const ReadHeaderTimeout = 5 * time.Second

// ShutdownTimeout limits how long the status server waits for in-flight
// requests during graceful shutdown.
const ShutdownTimeout = 5 * time.Second
