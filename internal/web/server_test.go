package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailflow-app/mailflow/internal/config"
	"github.com/mailflow-app/mailflow/internal/triage"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) http.Handler {
	t.Helper()
	cfg := config.Default()
	off := false
	cfg.Server.CSRF = &off
	if mutate != nil {
		mutate(cfg)
	}
	s, err := NewServer(cfg, triage.New(nil), "test", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(s.rateLimiter.Stop)
	return s.Handler()
}

func postJSON(h http.Handler, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestDiag(t *testing.T) {
	h := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/diag", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, triage.BuiltinSource, body["lexicon_source"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, false, body["inbox_enabled"])
	sizes, ok := body["lexicon_sizes"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 24, sizes["productive"])
}

func TestIndexPage(t *testing.T) {
	h := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `id="texto_email"`)
	assert.NotContains(t, rec.Body.String(), "csrf-token")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/processar_email")
}

func TestProcessEmail(t *testing.T) {
	h := newTestServer(t, nil)

	rec := postJSON(h, "/processar_email", `{"texto_email": "Bom dia, poderia informar o status do pedido 1234?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Produtivo", body["categoria"])
	assert.Contains(t, body["sugestao_resposta"], "referente ao pedido 1234")
	assert.NotContains(t, body, "pontuacao")

	rec = postJSON(h, "/processar_email", `{"texto_email": "Feliz natal! Obrigado pela parceria."}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Improdutivo", decode(t, rec)["categoria"])
}

func TestProcessEmailExplain(t *testing.T) {
	h := newTestServer(t, nil)

	rec := postJSON(h, "/processar_email?explain=1", `{"texto_email": "Qual o prazo?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Produtivo", body["categoria"])
	assert.EqualValues(t, 3, body["pontuacao"])

	sinais, ok := body["sinais"].([]interface{})
	require.True(t, ok)
	require.Len(t, sinais, 2)
	first := sinais[0].(map[string]interface{})
	assert.Equal(t, "productive", first["sinal"])
	assert.Equal(t, "prazo", first["termo"])
	assert.EqualValues(t, 2, first["peso"])
}

func TestProcessEmailRejectsBadRequests(t *testing.T) {
	h := newTestServer(t, func(cfg *config.Config) { cfg.Server.MaxBodyBytes = 64 })

	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
		erro        string
	}{
		{"Not JSON", "text/plain", "oi", http.StatusBadRequest, msgNotJSON},
		{"Empty text", "application/json", `{"texto_email": "   "}`, http.StatusBadRequest, msgEmptyText},
		{"Missing field", "application/json", `{}`, http.StatusBadRequest, msgEmptyText},
		{"Malformed JSON", "application/json", `{"texto_email":`, http.StatusBadRequest, msgEmptyText},
		{"Wrong type", "application/json", `{"texto_email": 42}`, http.StatusBadRequest, msgEmptyText},
		{"Too large", "application/json", `{"texto_email": "` + strings.Repeat("a", 100) + `"}`, http.StatusRequestEntityTooLarge, msgTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/processar_email", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.erro, decode(t, rec)["erro"])
		})
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nada", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgNotFound, decode(t, rec)["erro"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/processar_email", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, msgMethodNotAllowed, decode(t, rec)["erro"])
}

func withRateLimit(n int) func(*config.Config) {
	return func(cfg *config.Config) { cfg.Server.RateLimit = &n }
}

func postFrom(h http.Handler, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/processar_email", strings.NewReader(`{"texto_email": "status"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, withRateLimit(2))

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, postJSON(h, "/processar_email", `{"texto_email": "status"}`).Code)
	}
	rec := postJSON(h, "/processar_email", `{"texto_email": "status"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, msgRateLimited, decode(t, rec)["erro"])
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimitIgnoresForwardedHeaders(t *testing.T) {
	h := newTestServer(t, withRateLimit(2))

	limited := 0
	for i := 0; i < 10; i++ {
		if postFrom(h, fmt.Sprintf("10.0.0.%d", i)).Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 8, limited)
}

func TestRateLimitTrustProxy(t *testing.T) {
	h := newTestServer(t, func(cfg *config.Config) {
		withRateLimit(1)(cfg)
		cfg.Server.TrustProxy = true
	})

	assert.Equal(t, http.StatusOK, postFrom(h, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, postFrom(h, "10.0.0.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, postFrom(h, "10.0.0.1").Code)
}

func TestRateLimitZeroDisables(t *testing.T) {
	h := newTestServer(t, withRateLimit(0))
	for i := 0; i < 40; i++ {
		require.Equal(t, http.StatusOK, postJSON(h, "/processar_email", `{"texto_email": "status"}`).Code)
	}
}

func TestCSRFEnabled(t *testing.T) {
	h := newTestServer(t, func(cfg *config.Config) { cfg.Server.CSRF = nil })

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<meta name="csrf-token"`)

	// A browser session carries the CSRF cookie and must send the token.
	req := httptest.NewRequest(http.MethodPost, "/processar_email", strings.NewReader(`{"texto_email": "status"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "stale"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, msgCSRF, decode(t, rec)["erro"])

	// A form post without the cookie is still checked.
	req = httptest.NewRequest(http.MethodPost, "/processar_email", strings.NewReader("texto_email=status"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCSRFAllowsHeadlessJSONClients(t *testing.T) {
	h := newTestServer(t, func(cfg *config.Config) { cfg.Server.CSRF = nil })

	rec := postJSON(h, "/processar_email", `{"texto_email": "Qual o status do pedido 1234?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Produtivo", decode(t, rec)["categoria"])
}

func TestRecovererReturnsJSON(t *testing.T) {
	cfg := config.Default()
	s, err := NewServer(cfg, nil, "test", zerolog.Nop())
	require.NoError(t, err)
	defer s.rateLimiter.Stop()

	h := s.recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgInternal, decode(t, rec)["erro"])

	cfg.Server.VerboseErrors = true
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, decode(t, rec)["erro"], "boom")
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	defer rl.Stop()
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	unlimited := NewRateLimiter(0, time.Hour)
	defer unlimited.Stop()
	for i := 0; i < 5; i++ {
		assert.True(t, unlimited.Allow("a"))
	}
}
