package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS restricts the control API to the configured UI origins. The
// browser console sends bearer tokens, so credentials are allowed; the
// header allowance is exactly what the API consumes.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	return c.Handler
}
