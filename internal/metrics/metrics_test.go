package metrics

import (
	"strings"
	"testing"
)

func TestCanonicalPathBoundsCardinality(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/", "/"},
		{"/healthz", "/healthz"},
		{"/users/resolve", "/users"},
		{"/sessions/3f1c2a9e-77aa-4bde-9d10-5a0c9f1e2ab3", "/sessions"},
		{"/wallet", "/wallet"},
		{"/wallet/3f1c2a9e-77aa-4bde-9d10-5a0c9f1e2ab3", "/wallet/:id"},
		{"/wallet/3f1c2a9e-77aa-4bde-9d10-5a0c9f1e2ab3/transfers", "/wallet/:id/transfers"},
		{"/wallet/u1/refresh", "/wallet/:id/refresh"},
		{"/wallet/u1/deposits/fiat", "/wallet/:id/deposits/fiat"},
		{"/wallet/u1/deposits/ledger", "/wallet/:id/deposits/ledger"},
		{"/wallet/u1/deposits/tx-42/confirm", "/wallet/:id/deposits/:tx/confirm"},
	}

	for _, tc := range cases {
		if got := canonicalPath(tc.in); got != tc.want {
			t.Fatalf("canonicalPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalPathNeverEchoesUserID(t *testing.T) {
	const id = "3f1c2a9e-77aa-4bde-9d10-5a0c9f1e2ab3"
	for _, path := range []string{
		"/wallet/" + id,
		"/wallet/" + id + "/withdrawals",
		"/wallet/" + id + "/deposits/" + id + "/confirm",
	} {
		if got := canonicalPath(path); strings.Contains(got, id) {
			t.Fatalf("canonicalPath(%q) = %q leaks the id", path, got)
		}
	}
}
