package contact

import "strings"

// SubmissionForm is the JSON body of POST /send.
type SubmissionForm struct {
	Name    string `json:"name" validate:"required,max=200"`
	Company string `json:"company" validate:"max=200"`
	Email   string `json:"email" validate:"required,max=254,email,email_tld"`
	Phone   string `json:"phone" validate:"omitempty,max=32,br_phone"`
	Message string `json:"message" validate:"required,max=5000"`

	// CaptchaID is a pointer so that a missing id is distinguishable from 0.
	CaptchaID     *int   `json:"captchaId,omitempty"`
	CaptchaAnswer string `json:"captchaAnswer,omitempty"`
}

// Normalize trims surrounding whitespace from every text field. The captcha
// answer is trimmed too; comparison stays case-sensitive.
func (f *SubmissionForm) Normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Company = strings.TrimSpace(f.Company)
	f.Email = strings.TrimSpace(f.Email)
	f.Phone = strings.TrimSpace(f.Phone)
	f.Message = strings.TrimSpace(f.Message)
	f.CaptchaAnswer = strings.TrimSpace(f.CaptchaAnswer)
}
