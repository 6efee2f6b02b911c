package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovenly/ovenly/internal/auth"
	"github.com/ovenly/ovenly/internal/platform/httpx"
	"github.com/ovenly/ovenly/internal/shared"
	_ "github.com/ovenly/ovenly/testing"
)

type stubRepo struct {
	users map[string]*auth.User
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubRepo) FindByID(_ context.Context, id int64) (*auth.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func newRepo(t *testing.T) *stubRepo {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	return &stubRepo{users: map[string]*auth.User{
		"baker@ovenly.test":   {ID: 7, Email: "baker@ovenly.test", Role: "staff", PasswordHash: string(hash), IsActive: true},
		"retired@ovenly.test": {ID: 8, Email: "retired@ovenly.test", Role: "staff", PasswordHash: string(hash), IsActive: false},
	}}
}

type harness struct {
	router   chi.Router
	sessions *shared.SessionManager
	mr       *miniredis.Miniredis
	last     *shared.Session
}

func newHarness(t *testing.T, repo auth.Repository) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	h := &harness{sessions: shared.NewSessionManager(client, "test_session", "secret", time.Hour, false), mr: mr}
	handler := auth.NewHandler(nil, auth.NewService(repo), h.sessions, httpx.NewValidator())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := h.sessions.Load(req.Context(), req)
			require.NoError(t, err)
			h.last = sess
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/auth", func(r chi.Router) {
		handler.MountPublicRoutes(r)
		handler.MountRoutes(r)
	})
	h.router = r
	return h
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req)
	return res
}

func TestLoginBindsUserAndRole(t *testing.T) {
	h := newHarness(t, newRepo(t))

	res := h.do(http.MethodPost, "/auth/login", `{"email":"Baker@ovenly.test","password":"secret123"}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, int64(7), h.last.UserID())
	require.Equal(t, "staff", h.last.Role())

	var body struct {
		Success bool `json:"success"`
		User    struct {
			Email        string `json:"email"`
			PasswordHash string `json:"password_hash"`
		} `json:"user"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.True(t, body.Success)
	require.Equal(t, "baker@ovenly.test", body.User.Email)
	require.Empty(t, body.User.PasswordHash)

	require.NoError(t, h.sessions.Commit(context.Background(), httptest.NewRecorder(), h.last))
	require.True(t, h.mr.Exists("session:"+h.last.ID))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := newHarness(t, newRepo(t))

	cases := map[string]string{
		"wrong password": `{"email":"baker@ovenly.test","password":"nope"}`,
		"unknown user":   `{"email":"ghost@ovenly.test","password":"secret123"}`,
		"inactive user":  `{"email":"retired@ovenly.test","password":"secret123"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			res := h.do(http.MethodPost, "/auth/login", body)
			require.Equal(t, http.StatusUnauthorized, res.Code)
			require.False(t, h.last.Authenticated())
		})
	}

	res := h.do(http.MethodPost, "/auth/login", `{"email":"not-an-email","password":""}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestMeAndLogout(t *testing.T) {
	h := newHarness(t, newRepo(t))

	res := h.do(http.MethodGet, "/auth/me", "")
	require.Equal(t, http.StatusUnauthorized, res.Code)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"baker@ovenly.test","password":"secret123"}`))
	login := httptest.NewRecorder()
	h.router.ServeHTTP(login, req)
	require.Equal(t, http.StatusOK, login.Code)

	commit := httptest.NewRecorder()
	require.NoError(t, h.sessions.Commit(context.Background(), commit, h.last))
	cookies := commit.Result().Cookies()
	require.Len(t, cookies, 1)
	sessionID := h.last.ID

	me := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	me.AddCookie(cookies[0])
	meRes := httptest.NewRecorder()
	h.router.ServeHTTP(meRes, me)
	require.Equal(t, http.StatusOK, meRes.Code, meRes.Body.String())
	require.Contains(t, meRes.Body.String(), `"role":"staff"`)

	out := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	out.AddCookie(cookies[0])
	outRes := httptest.NewRecorder()
	h.router.ServeHTTP(outRes, out)
	require.Equal(t, http.StatusOK, outRes.Code)
	require.NoError(t, h.sessions.Commit(context.Background(), httptest.NewRecorder(), h.last))
	require.False(t, h.mr.Exists("session:"+sessionID))
}
