package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/dashboard-gate/internal/ratelimit"
)

type stubRecorder struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (s *stubRecorder) RecordAttempt(_ context.Context, attempt Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt)
}

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string) (time.Duration, error) {
	return 0, errors.New("redis down")
}

func (failingLimiter) Fail(context.Context, string) (int, error) { return 0, nil }

func (failingLimiter) Reset(context.Context, string) error { return nil }

// unrecordableLimiter は失敗回数の記録だけが失敗する Limiter です。
type unrecordableLimiter struct{}

func (unrecordableLimiter) Check(context.Context, string) (time.Duration, error) { return 0, nil }

func (unrecordableLimiter) Fail(context.Context, string) (int, error) {
	return 0, errors.New("redis down")
}

func (unrecordableLimiter) Reset(context.Context, string) error { return nil }

type testServer struct {
	router   *gin.Engine
	codec    *Codec
	clock    *fakeClock
	recorder *stubRecorder
}

func newTestServer(t *testing.T, hash string, opts ...Option) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	codec, clock := newTestCodec()
	recorder := &stubRecorder{}
	opts = append([]Option{WithRecorder(recorder), WithLogger(discardLogger())}, opts...)
	manager := NewManager(NewVerifier(hash, discardLogger()), codec, SessionCookieOptions(true), opts...)

	router := gin.New()
	router.POST("/api/auth/login", manager.Login)
	protected := router.Group("/api")
	protected.Use(manager.RequireSession(), manager.VerifyCSRF())
	protected.GET("/auth/session", manager.Session)
	protected.POST("/auth/logout", manager.Logout)

	return &testServer{router: router, codec: codec, clock: clock, recorder: recorder}
}

func (s *testServer) login(password string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]string{"password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:4321"
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) session(cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) logout(cookie *http.Cookie, csrf string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if csrf != "" {
		req.Header.Set(CSRFHeader, csrf)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	t.Fatalf("session cookie not set; headers=%v", rec.Header())
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v (body=%s)", err, rec.Body.String())
	}
	return payload
}

func TestLoginSuccessSetsSessionCookie(t *testing.T) {
	s := newTestServer(t, hashPassword(t, "correct-horse"))

	rec := s.login("correct-horse")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204 (body=%s)", rec.Code, rec.Body.String())
	}

	cookie := sessionCookie(t, rec)
	if !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("unexpected cookie attributes: %+v", cookie)
	}
	if cookie.Path != "/" || cookie.MaxAge != 86400 {
		t.Fatalf("unexpected cookie scope: %+v", cookie)
	}
	claims, ok := s.codec.Verify(cookie.Value)
	if !ok || !claims.Authenticated {
		t.Fatal("cookie value is not a valid session token")
	}
	if got := rec.Header().Get(CSRFHeader); got == "" || !s.codec.VerifyCSRF(claims, got) {
		t.Fatalf("unexpected CSRF header %q", got)
	}

	if len(s.recorder.attempts) != 1 || !s.recorder.attempts[0].Succeeded {
		t.Fatalf("unexpected recorded attempts: %+v", s.recorder.attempts)
	}
	if s.recorder.attempts[0].IP != "192.0.2.10" {
		t.Fatalf("recorded IP = %q", s.recorder.attempts[0].IP)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	s := newTestServer(t, hashPassword(t, "correct-horse"))

	rec := s.login("wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("no cookie should be set on failure")
	}
	payload := decodeBody(t, rec)
	if payload["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("code = %v", payload["code"])
	}
	if payload["remainingAttempts"] != float64(4) {
		t.Fatalf("remainingAttempts = %v, want 4", payload["remainingAttempts"])
	}
	if len(s.recorder.attempts) != 1 || s.recorder.attempts[0].Succeeded {
		t.Fatalf("unexpected recorded attempts: %+v", s.recorder.attempts)
	}
}

func TestLoginMissingPassword(t *testing.T) {
	s := newTestServer(t, hashPassword(t, "correct-horse"))

	rec := s.login("")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLoginWithoutConfiguredHash(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.login("correct-horse")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLoginMalformedHashIsFailedLogin(t *testing.T) {
	s := newTestServer(t, "not-a-bcrypt-hash")

	rec := s.login("correct-horse")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("bcrypt")) {
		t.Fatalf("internal error leaked to client: %s", rec.Body.String())
	}
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	s := newTestServer(t, hashPassword(t, "correct-horse"))

	for i := 0; i < 5; i++ {
		if rec := s.login("wrong"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, rec.Code)
		}
	}

	rec := s.login("correct-horse")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "600" {
		t.Fatalf("Retry-After = %q, want 600", got)
	}
}

func TestLoginSuccessResetsFailures(t *testing.T) {
	limiter := ratelimit.NewMemory(ratelimit.DefaultPolicy())
	s := newTestServer(t, hashPassword(t, "correct-horse"), WithLimiter(limiter))

	for i := 0; i < 4; i++ {
		s.login("wrong")
	}
	if rec := s.login("correct-horse"); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	payload := decodeBody(t, s.login("wrong"))
	if payload["remainingAttempts"] != float64(4) {
		t.Fatalf("remainingAttempts = %v, want 4", payload["remainingAttempts"])
	}
}

func TestLoginLimiterErrorIsInternalError(t *testing.T) {
	s := newTestServer(t, hashPassword(t, "correct-horse"), WithLimiter(failingLimiter{}))

	rec := s.login("correct-horse")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("redis")) {
		t.Fatalf("internal error leaked to client: %s", rec.Body.String())
	}
}

func TestRequireSessionAcceptsValidCookie(t *testing.T) {
	s := newTestServer(t, hashPassword(t, "correct-horse"))
	cookie := sessionCookie(t, s.login("correct-horse"))

	rec := s.session(cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["authenticated"] != true {
		t.Fatalf("authenticated = %v", payload["authenticated"])
	}
	if payload["expiresAt"] != s.clock.t.Add(SessionTTL).UTC().Format(time.RFC3339) {
		t.Fatalf("expiresAt = %v", payload["expiresAt"])
	}
}

func TestRequireSessionRejectsUniformly(t *testing.T) {
	s := newTestServer(t, hashPassword(t, "correct-horse"))
	valid := sessionCookie(t, s.login("correct-horse"))

	tampered := *valid
	tampered.Value = valid.Value[:len(valid.Value)-2] + "xx"

	missing := s.session(nil)
	forged := s.session(&tampered)

	s.clock.Advance(25 * time.Hour)
	expired := s.session(valid)

	for name, rec := range map[string]*httptest.ResponseRecorder{
		"missing": missing,
		"forged":  forged,
		"expired": expired,
	} {
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", name, rec.Code)
		}
		if rec.Body.String() != missing.Body.String() {
			t.Fatalf("%s: response differs from missing-cookie response: %s", name, rec.Body.String())
		}
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	s := newTestServer(t, hashPassword(t, "correct-horse"))
	login := s.login("correct-horse")

	rec := s.logout(sessionCookie(t, login), login.Header().Get(CSRFHeader))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	cookie := sessionCookie(t, rec)
	if cookie.MaxAge >= 0 || cookie.Value != "" {
		t.Fatalf("expected deletion cookie, got %+v", cookie)
	}
}

func TestClaimsFromContextWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	if _, ok := ClaimsFromContext(ctx); ok {
		t.Fatal("expected no claims without middleware")
	}
}

func TestLogoutRequiresSession(t *testing.T) {
	s := newTestServer(t, hashPassword(t, "correct-horse"))

	if rec := s.logout(nil, "anything"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestVerifyCSRFMissingHeader(t *testing.T) {
	s := newTestServer(t, hashPassword(t, "correct-horse"))
	cookie := sessionCookie(t, s.login("correct-horse"))

	rec := s.logout(cookie, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if payload := decodeBody(t, rec); payload["code"] != "CSRF_MISSING" {
		t.Fatalf("code = %v, want CSRF_MISSING", payload["code"])
	}
}

func TestVerifyCSRFWrongHeader(t *testing.T) {
	s := newTestServer(t, hashPassword(t, "correct-horse"))
	cookie := sessionCookie(t, s.login("correct-horse"))
	// 別セッションのトークンは使えない
	other := s.login("correct-horse").Header().Get(CSRFHeader)

	for _, csrf := range []string{"wrong-token", other} {
		rec := s.logout(cookie, csrf)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("csrf %q: status = %d, want 403", csrf, rec.Code)
		}
		if payload := decodeBody(t, rec); payload["code"] != "CSRF_INVALID" {
			t.Fatalf("code = %v, want CSRF_INVALID", payload["code"])
		}
	}
}

func TestSessionReturnsCSRFToken(t *testing.T) {
	s := newTestServer(t, hashPassword(t, "correct-horse"))
	login := s.login("correct-horse")

	// GET は CSRF ヘッダー無しで通る
	rec := s.session(sessionCookie(t, login))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got, want := rec.Header().Get(CSRFHeader), login.Header().Get(CSRFHeader); got != want {
		t.Fatalf("CSRF header = %q, want %q", got, want)
	}
}

func TestLoginOmitsRemainingWhenFailureNotRecorded(t *testing.T) {
	s := newTestServer(t, hashPassword(t, "correct-horse"), WithLimiter(unrecordableLimiter{}))

	rec := s.login("wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	payload := decodeBody(t, rec)
	if _, ok := payload["remainingAttempts"]; ok {
		t.Fatalf("remainingAttempts should be omitted, got %v", payload["remainingAttempts"])
	}
	if payload["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("code = %v", payload["code"])
	}
}
