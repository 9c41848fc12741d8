package contact

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/welldanyogia/contact-mailer/internal/captcha"
	"github.com/welldanyogia/contact-mailer/internal/middleware"
	"github.com/welldanyogia/contact-mailer/internal/relay"
)

type testServer struct {
	router *chi.Mux
	relay  *fakeRelay
}

func newTestServer(t *testing.T, rl *fakeRelay, store *captcha.Store, sendLimit int) *testServer {
	t.Helper()

	if rl == nil {
		rl = &fakeRelay{}
	}
	handler := NewHandler(NewValidator(false), store, NewDispatcher(testRegistry(), rl, time.Second, nil), nil)

	captchaGuard := middleware.NewGuard(middleware.GuardConfig{
		Endpoint: "captcha",
		Limit:    5,
		Window:   15 * time.Minute,
		Message:  MsgCaptchaLimit,
	}, middleware.NewMemoryCounter(), nil)
	sendGuard := middleware.NewGuard(middleware.GuardConfig{
		Endpoint: "send",
		Limit:    sendLimit,
		Window:   time.Hour,
		Message:  SendLimitMessage(sendLimit, time.Hour),
	}, middleware.NewMemoryCounter(), nil)

	r := chi.NewRouter()
	RegisterRoutes(r, handler, captchaGuard.Middleware, sendGuard.Middleware)
	return &testServer{router: r, relay: rl}
}

func (s *testServer) post(t *testing.T, requestOrigin string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if raw, ok := body.(string); ok {
		buf.WriteString(raw)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/send", &buf)
	req.Header.Set("Content-Type", "application/json")
	if requestOrigin != "" {
		req.Header.Set("Origin", requestOrigin)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

var anaForm = map[string]string{
	"name":    "Ana",
	"company": "Acme",
	"email":   "ana@acme.com",
	"message": "Hi",
}

func TestSend_Success(t *testing.T) {
	s := newTestServer(t, nil, nil, 2)

	rec := s.post(t, testOrigin, anaForm)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool           `json:"success"`
		Info    *relay.Receipt `json:"info"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Info == nil {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if resp.Info.MessageID == "" || resp.Info.DispatchID == "" {
		t.Errorf("receipt missing ids: %+v", resp.Info)
	}
	if s.relay.callCount() != 1 {
		t.Errorf("relay calls: got %d, want 1", s.relay.callCount())
	}
}

func TestSend_UnknownOrigin(t *testing.T) {
	s := newTestServer(t, nil, nil, 2)

	for _, o := range []string{"https://evil.example", ""} {
		rec := s.post(t, o, anaForm)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("origin %q: status %d, want 400", o, rec.Code)
		}
		if resp := decodeError(t, rec); resp.Error != "Origem inválida" {
			t.Errorf("origin %q: error %q", o, resp.Error)
		}
	}
	if s.relay.callCount() != 0 {
		t.Errorf("relay calls: got %d, want 0", s.relay.callCount())
	}
}

func TestSend_ValidationError(t *testing.T) {
	s := newTestServer(t, nil, nil, 2)

	rec := s.post(t, testOrigin, map[string]string{"name": "Ana", "email": "not-an-email", "message": "Hi"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}

	resp := decodeError(t, rec)
	if !strings.Contains(resp.Error, "e-mail") {
		t.Errorf("error should name the email field: %q", resp.Error)
	}
	if len(resp.Fields) != 1 || resp.Fields[0].Field != "email" {
		t.Errorf("fields: got %+v", resp.Fields)
	}
	if s.relay.callCount() != 0 {
		t.Error("relay must not be called for an invalid form")
	}
}

func TestSend_MalformedBody(t *testing.T) {
	s := newTestServer(t, nil, nil, 2)

	rec := s.post(t, testOrigin, `{"name": "Ana",`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != MsgInvalidBody {
		t.Errorf("error: got %q", resp.Error)
	}
}

func TestSend_BodyTooLarge(t *testing.T) {
	s := newTestServer(t, nil, nil, 2)

	body := `{"name":"Ana","email":"ana@acme.com","message":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	rec := s.post(t, testOrigin, body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status: got %d, want 413", rec.Code)
	}
}

func TestSend_RateLimited(t *testing.T) {
	s := newTestServer(t, nil, nil, 2)

	for i := 0; i < 2; i++ {
		if rec := s.post(t, testOrigin, anaForm); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, rec.Code)
		}
	}

	rec := s.post(t, testOrigin, anaForm)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("3rd request: status %d, want 429", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "Você atingiu o limite de envio de e-mails (2) por hora. Tente novamente em uma hora." {
		t.Errorf("error: got %q", resp.Error)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
	if s.relay.callCount() != 2 {
		t.Errorf("relay calls: got %d, want 2", s.relay.callCount())
	}
}

func TestSend_RelayFailures(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		err     error
		wantMsg string
	}{
		{
			name:    "network",
			origin:  testOrigin,
			err:     &relay.Error{Kind: relay.KindNetwork, Code: relay.CodeDNS, Provider: "fake", Err: errors.New("no such host")},
			wantMsg: MsgNetworkFailure,
		},
		{
			name:    "auth",
			origin:  testOrigin,
			err:     &relay.Error{Kind: relay.KindAuth, Code: relay.CodeAuth, Provider: "fake", Status: 535, Err: errors.New("denied")},
			wantMsg: "Erro ao enviar o e-mail. Código: EAUTH",
		},
		{
			name:    "misconfigured origin",
			origin:  brokenOrigin,
			wantMsg: "Erro ao enviar o e-mail.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeRelay{err: tt.err}, nil, 10)

			rec := s.post(t, tt.origin, anaForm)
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status: got %d, want 500", rec.Code)
			}
			resp := decodeError(t, rec)
			if resp.Error != tt.wantMsg {
				t.Errorf("error: got %q, want %q", resp.Error, tt.wantMsg)
			}
			if strings.Contains(rec.Body.String(), testSecret) {
				t.Error("response leaks the transport secret")
			}
		})
	}
}

func TestSend_Captcha(t *testing.T) {
	store := captcha.New([]captcha.Question{{Prompt: "Quanto é 2 + 3?", Answer: "5"}})

	tests := []struct {
		name       string
		form       map[string]interface{}
		wantStatus int
	}{
		{"missing id", map[string]interface{}{"captchaAnswer": "5"}, http.StatusBadRequest},
		{"wrong answer", map[string]interface{}{"captchaId": 0, "captchaAnswer": "6"}, http.StatusBadRequest},
		{"unknown id", map[string]interface{}{"captchaId": 9999, "captchaAnswer": "5"}, http.StatusBadRequest},
		{"correct answer", map[string]interface{}{"captchaId": 0, "captchaAnswer": " 5 "}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil, store, 10)

			form := map[string]interface{}{}
			for k, v := range anaForm {
				form[k] = v
			}
			for k, v := range tt.form {
				form[k] = v
			}

			rec := s.post(t, testOrigin, form)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status: got %d, want %d; body %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusBadRequest {
				if resp := decodeError(t, rec); resp.Error != "Captcha inválido" {
					t.Errorf("error: got %q", resp.Error)
				}
				if s.relay.callCount() != 0 {
					t.Error("relay must not be called")
				}
			}
		})
	}
}

func TestCaptchaEndpoint(t *testing.T) {
	store := captcha.New([]captcha.Question{{Prompt: "Quanto é 2 + 3?", Answer: "5"}})
	s := newTestServer(t, nil, store, 2)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/captcha", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}

	var resp CaptchaResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != 0 || resp.Question != "Quanto é 2 + 3?" {
		t.Errorf("got %+v", resp)
	}
	if strings.Contains(rec.Body.String(), `"5"`) {
		t.Error("response must not contain the answer")
	}
}

func TestCaptchaEndpoint_RateLimited(t *testing.T) {
	store := captcha.New([]captcha.Question{{Prompt: "Quanto é 2 + 3?", Answer: "5"}})
	s := newTestServer(t, nil, store, 2)

	var rec *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		rec = httptest.NewRecorder()
		s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/captcha", nil))
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("6th request: status %d, want 429", rec.Code)
	}
}

func TestCaptchaEndpoint_Disabled(t *testing.T) {
	for _, store := range []*captcha.Store{nil, captcha.New(nil)} {
		s := newTestServer(t, nil, store, 2)

		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/captcha", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status: got %d, want 404", rec.Code)
		}
	}
}

func TestRoot(t *testing.T) {
	s := newTestServer(t, nil, nil, 2)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type: got %q", ct)
	}
	if rec.Body.String() != "API para gestão de formulários de e-mail." {
		t.Errorf("body: got %q", rec.Body.String())
	}
}
