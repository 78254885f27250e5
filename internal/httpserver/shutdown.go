package httpserver

import "time"

// ShutdownTimeout controls how long to wait for graceful shutdowns,
// including uploads still relaying to remote storage.
var ShutdownTimeout = 30 * time.Second
