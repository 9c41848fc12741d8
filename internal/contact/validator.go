package contact

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// phoneRegex accepts an optional area code, "(DD)" or "DD", followed by a
// 4 or 5 digit prefix and a 4 digit suffix. Separators may be a space, a
// dot or a hyphen.
var phoneRegex = regexp.MustCompile(`^(\(\d{2}\)\s?|\d{2}[\s.-]?)?\d{4,5}[\s.-]?\d{4}$`)

// fieldOrder is the order validation errors are reported in.
var fieldOrder = []string{"name", "company", "email", "message", "phone"}

var fieldLabels = map[string]string{
	"name":    "nome",
	"company": "empresa",
	"email":   "e-mail",
	"phone":   "telefone",
	"message": "mensagem",
}

// FieldError describes one rejected form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationMessage builds the user-facing summary naming the offending fields.
func ValidationMessage(fields []FieldError) string {
	labels := make([]string, 0, len(fields))
	for _, f := range fields {
		labels = append(labels, fieldLabels[f.Field])
	}
	return "Campos inválidos: " + strings.Join(labels, ", ") + "."
}

// Validator checks submission forms.
type Validator struct {
	validate      *validator.Validate
	phoneRequired bool
}

// NewValidator creates a Validator. When phoneRequired is set an empty phone
// is rejected.
func NewValidator(phoneRequired bool) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("br_phone", validatePhone)
	_ = v.RegisterValidation("email_tld", validateEmailTLD)

	return &Validator{validate: v, phoneRequired: phoneRequired}
}

// Validate reports every failed rule, or nil when the form is valid.
// The form is expected to be normalized.
func (v *Validator) Validate(form *SubmissionForm) []FieldError {
	byField := make(map[string]FieldError)

	// Struct only returns other error types for non-struct input.
	var verrs validator.ValidationErrors
	if err := v.validate.Struct(form); errors.As(err, &verrs) {
		for _, fe := range verrs {
			if _, seen := byField[fe.Field()]; !seen {
				byField[fe.Field()] = FieldError{Field: fe.Field(), Message: fieldMessage(fe.Field(), fe.Tag(), fe.Param())}
			}
		}
	}

	if v.phoneRequired && form.Phone == "" {
		byField["phone"] = FieldError{Field: "phone", Message: fieldMessage("phone", "required", "")}
	}

	if len(byField) == 0 {
		return nil
	}
	fields := make([]FieldError, 0, len(byField))
	for _, name := range fieldOrder {
		if fe, ok := byField[name]; ok {
			fields = append(fields, fe)
		}
	}
	return fields
}

func fieldMessage(field, tag, param string) string {
	label := fieldLabels[field]
	switch tag {
	case "required":
		return fmt.Sprintf("O campo %s é obrigatório.", label)
	case "max":
		return fmt.Sprintf("O campo %s deve ter no máximo %s caracteres.", label, param)
	case "email", "email_tld":
		return "Informe um e-mail válido."
	case "br_phone":
		return "Informe um telefone válido com DDD."
	default:
		return fmt.Sprintf("O campo %s é inválido.", label)
	}
}

// validatePhone accepts 10 or 11 digit numbers in the regional format.
func validatePhone(fl validator.FieldLevel) bool {
	phone := fl.Field().String()
	if !phoneRegex.MatchString(phone) {
		return false
	}
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits == 10 || digits == 11
}

// validateEmailTLD requires a dotted domain with an alphabetic top-level
// label of at least two letters.
func validateEmailTLD(fl validator.FieldLevel) bool {
	email := fl.Field().String()
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := email[at+1:]
	dot := strings.LastIndex(domain, ".")
	if dot <= 0 {
		return false
	}
	tld := domain[dot+1:]
	if len(tld) < 2 {
		return false
	}
	for _, r := range tld {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
