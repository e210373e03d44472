package server

import "time"

// Config holds the HTTP listener settings.
type Config struct {
	Addr            string        `envconfig:"SERVER_ADDR" default:":8080"`
	APIToken        string        `envconfig:"API_BEARER_TOKEN" default:"changeme"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}
