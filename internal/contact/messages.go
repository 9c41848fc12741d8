package contact

import (
	"fmt"
	"time"
)

// User-facing messages.
const (
	MsgRoot            = "API para gestão de formulários de e-mail."
	MsgInvalidBody     = "Corpo da requisição inválido."
	MsgInvalidOrigin   = "Origem inválida"
	MsgInvalidCaptcha  = "Captcha inválido"
	MsgCaptchaDisabled = "Captcha desativado."
	MsgSendFailed      = "Erro ao enviar o e-mail."
	MsgNetworkFailure  = "Não foi possível conectar ao servidor de e-mail. Tente novamente mais tarde."
	MsgCaptchaLimit    = "Você atingiu o limite de solicitações de captcha. Tente novamente em alguns minutos."
)

// SendLimitMessage is the 429 text of the send endpoint.
func SendLimitMessage(limit int, window time.Duration) string {
	if window == time.Hour {
		return fmt.Sprintf("Você atingiu o limite de envio de e-mails (%d) por hora. Tente novamente em uma hora.", limit)
	}
	return fmt.Sprintf("Você atingiu o limite de envio de e-mails (%d) em %s. Tente novamente mais tarde.", limit, window)
}

// TransportFailureMessage includes the relay error code for support requests.
func TransportFailureMessage(code string) string {
	return fmt.Sprintf("%s Código: %s", MsgSendFailed, code)
}
