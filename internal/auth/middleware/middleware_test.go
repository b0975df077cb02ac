package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/juanlms/quizcore/internal/quiz"
	"github.com/juanlms/quizcore/internal/rbac"
)

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rbac.SubjectFromContext(r.Context()) + "|" + rbac.RoleFromContext(r.Context())))
	})
}

func call(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestJWTMiddleware(t *testing.T) {
	a := NewAuthService("secret", time.Hour)
	h := JWTMiddleware(a)(echoPrincipal())

	tok, err := a.IssueJWT("s1", "student")
	require.NoError(t, err)
	rec := call(h, tok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1|student", rec.Body.String())

	rec = call(h, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing bearer")

	rec = call(h, tok+"x")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "bad token")

	other := NewAuthService("other", time.Hour)
	forged, err := other.IssueJWT("s1", "admin")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call(h, forged).Code)
}

func TestJWTMiddleware_Expired(t *testing.T) {
	a := NewAuthService("secret", time.Minute)
	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := a.IssueJWT("s1", "student")
	require.NoError(t, err)

	a.now = time.Now
	rec := call(JWTMiddleware(a)(echoPrincipal()), tok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token expired")
}

func TestLoginHandler(t *testing.T) {
	ctx := context.Background()
	roster := quiz.NewMemoryRoster()
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, roster.PutUser(ctx, quiz.User{ID: "u1", Username: "ana", PasswordHash: string(hash), Role: "teacher"}))

	a := NewAuthService("secret", time.Hour)
	h := LoginHandler(a, roster)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
		return rec
	}

	rec := post(`{"username":"ana","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	c, err := a.Parse(out["access_token"])
	require.NoError(t, err)
	assert.Equal(t, "u1", c.Sub)
	assert.Equal(t, "teacher", c.Role)

	assert.Equal(t, http.StatusUnauthorized, post(`{"username":"ana","password":"nope"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, post(`{"username":"bob","password":"pw"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{`).Code)
}

func TestAttachRoleFromRoster(t *testing.T) {
	ctx := context.Background()
	roster := quiz.NewMemoryRoster()
	require.NoError(t, roster.PutUser(ctx, quiz.User{ID: "t1", Username: "t1", Role: "teacher"}))

	run := func(fallback bool, sub, role string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(rbac.WithRole(rbac.WithSubject(req.Context(), sub), role))
		rec := httptest.NewRecorder()
		AttachRoleFromRoster(roster, fallback)(echoPrincipal()).ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, "t1|teacher", run(false, "t1", "student").Body.String(), "stored role wins")
	assert.Equal(t, http.StatusForbidden, run(false, "ghost", "student").Code)
	assert.Equal(t, "ghost|student", run(true, "ghost", "student").Body.String())
	assert.Equal(t, "root|admin", run(false, "root", "admin").Body.String())
}
