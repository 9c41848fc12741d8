package contact

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/welldanyogia/contact-mailer/internal/captcha"
	"github.com/welldanyogia/contact-mailer/internal/logger"
	"github.com/welldanyogia/contact-mailer/internal/metrics"
	"github.com/welldanyogia/contact-mailer/internal/relay"
)

// MaxBodyBytes bounds the size of a submission body.
const MaxBodyBytes = 64 << 10

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

// SendResponse is the body of a successful POST /send.
type SendResponse struct {
	Success bool           `json:"success"`
	Info    *relay.Receipt `json:"info"`
}

// CaptchaResponse is the body of GET /captcha.
type CaptchaResponse struct {
	Question string `json:"question"`
	ID       int    `json:"id"`
}

// Handler serves the contact form endpoints.
type Handler struct {
	validator  *Validator
	captcha    *captcha.Store
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewHandler creates a Handler. A nil or empty captcha store disables the
// captcha check and the GET /captcha endpoint.
func NewHandler(v *Validator, store *captcha.Store, d *Dispatcher, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if store != nil && store.Len() == 0 {
		store = nil
	}
	return &Handler{
		validator:  v,
		captcha:    store,
		dispatcher: d,
		logger:     log,
	}
}

// CaptchaEnabled reports whether submissions must answer a challenge.
func (h *Handler) CaptchaEnabled() bool {
	return h.captcha != nil
}

// Root handles GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(MsgRoot))
}

// Captcha handles GET /captcha
func (h *Handler) Captcha(w http.ResponseWriter, r *http.Request) {
	if h.captcha == nil {
		h.writeError(w, http.StatusNotFound, MsgCaptchaDisabled, nil)
		return
	}
	id, question := h.captcha.Issue()
	h.writeJSON(w, http.StatusOK, CaptchaResponse{Question: question, ID: id})
}

// Send handles POST /send
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	log := logger.WithCorrelationID(r.Context(), h.logger)

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	var form SubmissionForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, http.StatusRequestEntityTooLarge, MsgInvalidBody, nil)
			return
		}
		h.writeError(w, http.StatusBadRequest, MsgInvalidBody, nil)
		return
	}
	form.Normalize()

	if fields := h.validator.Validate(&form); len(fields) > 0 {
		log.DebugContext(r.Context(), "submission rejected by validation", slog.Int("fields", len(fields)))
		h.writeError(w, http.StatusBadRequest, ValidationMessage(fields), fields)
		return
	}

	if h.captcha != nil {
		if form.CaptchaID == nil || !h.captcha.Verify(*form.CaptchaID, form.CaptchaAnswer) {
			metrics.CaptchaVerificationsTotal.WithLabelValues("invalid").Inc()
			h.writeError(w, http.StatusBadRequest, MsgInvalidCaptcha, nil)
			return
		}
		metrics.CaptchaVerificationsTotal.WithLabelValues("valid").Inc()
	}

	requestOrigin := r.Header.Get("Origin")
	log.DebugContext(r.Context(), "received submission", slog.String("origin", requestOrigin))

	receipt, err := h.dispatcher.Dispatch(r.Context(), requestOrigin, &form)
	if err != nil {
		h.handleDispatchError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, SendResponse{Success: true, Info: receipt})
}

// handleDispatchError maps dispatcher errors to HTTP responses
func (h *Handler) handleDispatchError(w http.ResponseWriter, err error) {
	var relayErr *relay.Error
	switch {
	case errors.Is(err, ErrOriginRejected):
		h.writeError(w, http.StatusBadRequest, MsgInvalidOrigin, nil)
	case errors.Is(err, ErrCredentialMisconfigured):
		h.writeError(w, http.StatusInternalServerError, MsgSendFailed, nil)
	case relay.IsNetwork(err):
		h.writeError(w, http.StatusInternalServerError, MsgNetworkFailure, nil)
	case errors.As(err, &relayErr):
		h.writeError(w, http.StatusInternalServerError, TransportFailureMessage(relayErr.Code), nil)
	default:
		h.logger.Error("Unexpected dispatch error", "error", err)
		h.writeError(w, http.StatusInternalServerError, MsgSendFailed, nil)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, statusCode int, message string, fields []FieldError) {
	h.writeJSON(w, statusCode, ErrorResponse{Error: message, Fields: fields})
}
