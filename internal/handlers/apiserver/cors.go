package apiserver

import (
	"net/http"

	"github.com/gorilla/handlers"

	"pronet-go/internal/config"
)

// NewCORSMiddleware builds the CORS wrapper from configuration. Credentials
// are only allowed when the config says so.
func NewCORSMiddleware(cfg config.CORSConfig) func(http.Handler) http.Handler {
	opts := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods(cfg.AllowedMethods),
		handlers.AllowedHeaders(cfg.AllowedHeaders),
		handlers.ExposedHeaders(cfg.ExposedHeaders),
		handlers.MaxAge(cfg.MaxAge),
	}
	if cfg.AllowCredentials {
		opts = append(opts, handlers.AllowCredentials())
	}
	return handlers.CORS(opts...)
}
