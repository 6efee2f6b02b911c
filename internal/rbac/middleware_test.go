package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ovenly/ovenly/internal/shared"
)

type staticRepo struct {
	grants map[string][]string
	calls  int
}

func (r *staticRepo) PermissionsForRole(_ context.Context, role string) ([]string, error) {
	r.calls++
	return r.grants[role], nil
}

func (r *staticRepo) ListGrants(context.Context) ([]Grant, error) {
	var out []Grant
	for role, perms := range r.grants {
		for _, p := range perms {
			out = append(out, Grant{Role: role, Permission: p})
		}
	}
	return out, nil
}

func requestAs(userID int64, role string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	sess := &shared.Session{}
	if userID != 0 {
		sess.SetUser(userID, role)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestRequireAny(t *testing.T) {
	repo := &staticRepo{grants: map[string][]string{"staff": {PermInventoryView}}}
	mw := Middleware{Service: NewService(repo)}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	guarded := mw.RequireAny(PermInventoryEdit)(ok)

	cases := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"anonymous", requestAs(0, ""), http.StatusUnauthorized},
		{"missing permission", requestAs(2, "staff"), http.StatusForbidden},
		{"admin bypass", requestAs(1, RoleAdmin), http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			guarded.ServeHTTP(rec, tc.req)
			require.Equal(t, tc.status, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	mw.RequireAny(PermInventoryView)(ok).ServeHTTP(rec, requestAs(2, "staff"))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireAuthenticated(t *testing.T) {
	mw := Middleware{}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	rec := httptest.NewRecorder()
	mw.RequireAuthenticated()(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	mw.RequireAuthenticated()(ok).ServeHTTP(rec, requestAs(3, "staff"))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestEffectivePermissionsCached(t *testing.T) {
	repo := &staticRepo{grants: map[string][]string{"manager": {PermSalesEdit}}}
	svc := NewService(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		perms, err := svc.EffectivePermissions(ctx, "Manager")
		require.NoError(t, err)
		require.Equal(t, []string{PermSalesEdit}, perms)
	}
	require.Equal(t, 1, repo.calls)
}
