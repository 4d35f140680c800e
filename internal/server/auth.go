package server

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

// requireAuth validates an HS256 bearer token when a JWT secret is
// configured. Without a secret every request passes.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	if s.opts.JWTSecret == "" {
		return next
	}
	key := []byte(s.opts.JWTSecret)
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.opts.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(s.opts.JWTIssuer))
	}
	parser := jwt.NewParser(opts...)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))

		token, err := parser.Parse(raw, func(*jwt.Token) (any, error) { return key, nil })
		if err != nil || !token.Valid {
			s.logger.Warn("rejected token", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
