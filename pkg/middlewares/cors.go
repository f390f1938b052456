package middlewares

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// CorsOptions allows browser dashboards on origins to read state and
// snapshots and to send commands
func CorsOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type", "X-Correlation-Id"},
		ExposedHeaders:   []string{"X-Txn-ID", "X-Correlation-Id"},
		AllowCredentials: false,
	}
}

// NewCorsMw should be the first middleware in the chain so that preflight
// requests are answered before logging and routing
func NewCorsMw(opts cors.Options) mux.MiddlewareFunc {
	c := cors.New(opts)

	return func(next http.Handler) http.Handler {
		return c.Handler(next)
	}
}
