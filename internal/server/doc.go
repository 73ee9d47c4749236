// Package server implements the TCP data-port listener and the HTTP ops API.
// Every accepted connection is handed to its own stream session; the HTTP API
// exposes health, statistics, open transfers and Prometheus metrics.
package server
