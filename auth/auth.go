package auth

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/raid-guild/x402-facilitator-go/utils"
)

// Authenticator checks the credentials on incoming API requests. At most one
// of StaticAPIKey and DB may be set. A zero Authenticator allows every
// request.
type Authenticator struct {
	// StaticAPIKey is compared against the X-API-Key header.
	StaticAPIKey string

	// DB is queried for the X-API-Key header in the users table.
	DB *sql.DB

	// JWTSecret enables HS256 bearer tokens as an alternative to API keys.
	JWTSecret []byte
	JWTIssuer string

	// Now defaults to the wall clock.
	Now func() time.Time
}

// Authenticate authenticates the request.
func (a *Authenticator) Authenticate(r *http.Request) error {

	// Get the API key from the request header
	providedKey := r.Header.Get("X-API-Key")

	// Check if the authenticator is misconfigured
	if a.StaticAPIKey != "" && a.DB != nil {
		return utils.NewStatusError(
			errors.New("both static API key and database are set"),
			http.StatusInternalServerError,
		)
	}

	// Accept a valid bearer token before falling back to API keys
	if len(a.JWTSecret) > 0 {
		if token, ok := bearerToken(r); ok {
			return a.authenticateToken(token)
		}
	}

	// Check the static API key
	if a.StaticAPIKey != "" {
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(a.StaticAPIKey)) != 1 {
			return unauthorized()
		}
		return nil
	}

	// Check the API key against the database
	if a.DB != nil {
		if providedKey == "" {
			return unauthorized()
		}
		return a.lookupKey(r.Context(), providedKey)
	}

	// Require a token when only bearer tokens are configured
	if len(a.JWTSecret) > 0 {
		return unauthorized()
	}

	return nil
}

// Middleware rejects requests that fail Authenticate.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.Authenticate(r); err != nil {
			http.Error(w, err.Error(), utils.StatusOf(err))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) lookupKey(ctx context.Context, providedKey string) error {

	// Check the API key exists in the database
	var apiKey string
	err := a.DB.QueryRowContext(ctx,
		"SELECT api_key FROM users WHERE api_key = $1",
		providedKey,
	).Scan(&apiKey)

	// Check if the query returned a no rows error
	if errors.Is(err, sql.ErrNoRows) {
		return unauthorized()
	}

	// Check if the query returned a different error
	if err != nil {
		return utils.NewStatusError(
			errors.New("failed to get key from database"),
			http.StatusInternalServerError,
		)
	}

	return nil
}

func (a *Authenticator) authenticateToken(token string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(a.JWTIssuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.JWTSecret, nil
	}, opts...)
	if err != nil {
		return unauthorized()
	}
	return nil
}

func (a *Authenticator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func unauthorized() error {
	return utils.NewStatusError(
		errors.New("unauthorized"),
		http.StatusUnauthorized,
	)
}
