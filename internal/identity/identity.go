// Package identity resolves the operator identity for each request.
//
// Authentication itself lives outside this service; the surrounding
// deployment injects a trusted operator id header.
package identity

import (
	"context"
	"net/http"
	"regexp"
	"strings"
)

const (
	// OperatorHeaderName carries the operator id set by the fronting proxy.
	OperatorHeaderName = "X-Operator-ID"

	// DefaultOperatorID is used for single-operator deployments with no
	// fronting proxy.
	DefaultOperatorID = "local"
)

type contextKey int

const operatorIDKey contextKey = iota

var operatorIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)

// OperatorIDFromContext extracts the operator id from the request context.
func OperatorIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(operatorIDKey).(string); ok {
		return v
	}
	return DefaultOperatorID
}

func sanitizeOperatorID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !operatorIDPattern.MatchString(id) {
		return DefaultOperatorID
	}
	return id
}

// Middleware injects the operator id into the request context.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			operatorID := sanitizeOperatorID(r.Header.Get(OperatorHeaderName))
			ctx := context.WithValue(r.Context(), operatorIDKey, operatorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
