package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func operatorSeenBy(t *testing.T, header string) string {
	t.Helper()
	var got string
	handler := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = OperatorIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(OperatorHeaderName, header)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestMiddlewareInjectsOperatorID(t *testing.T) {
	t.Parallel()

	if got := operatorSeenBy(t, "alice"); got != "alice" {
		t.Fatalf("expected alice, got %q", got)
	}
}

func TestMiddlewareDefaultsWithoutHeader(t *testing.T) {
	t.Parallel()

	if got := operatorSeenBy(t, ""); got != DefaultOperatorID {
		t.Fatalf("expected default operator, got %q", got)
	}
}

func TestMiddlewareRejectsInvalidIDs(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"has spaces", "semi;colon", "x/../y", string(make([]byte, 100))} {
		if got := operatorSeenBy(t, bad); got != DefaultOperatorID {
			t.Fatalf("invalid id %q must fall back to default, got %q", bad, got)
		}
	}
}

func TestOperatorIDFromBareContext(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := OperatorIDFromContext(req.Context()); got != DefaultOperatorID {
		t.Fatalf("bare context must yield the default operator, got %q", got)
	}
}
