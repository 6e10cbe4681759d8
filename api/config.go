// Package api provides the HTTP API server for recording and inspecting
// episodic events.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string
}
