package contact

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the contact form routes. The guards run before
// any request parsing.
func RegisterRoutes(r chi.Router, handler *Handler, captchaGuard, sendGuard func(next http.Handler) http.Handler) {
	// GET / - liveness text for the front-ends
	r.Get("/", handler.Root)

	// GET /captcha - issue a challenge question
	r.With(captchaGuard).Get("/captcha", handler.Captcha)

	// POST /send - validate and relay a submission
	r.With(sendGuard).Post("/send", handler.Send)
}
