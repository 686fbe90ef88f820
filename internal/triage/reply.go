package triage

import "fmt"

// Reply templates. The productive acknowledgment has a fixed variant with
// and one without the referenced request.
const (
	replyProductive = "Olá! Registramos sua solicitação. " +
		"Nossa equipe vai verificar e retornar com uma atualização em breve. " +
		"Se possível, compartilhe anexos ou detalhes adicionais para agilizar o atendimento."
	replyProductiveRef = "Olá! Registramos sua solicitação referente ao %s. " +
		"Nossa equipe vai verificar e retornar com uma atualização em breve. " +
		"Se possível, compartilhe anexos ou detalhes adicionais para agilizar o atendimento."
	replyPromotional = "Olá! Esta mensagem aparenta ser promocional e não requer ação da nossa equipe. " +
		"Permanecemos à disposição."
	replyNoAction = "Obrigado pela mensagem! Não identificamos nenhuma ação necessária no momento. " +
		"Se precisar de suporte, descreva a demanda."
)

// ComposeReply picks the suggested reply for a category and its signals.
func ComposeReply(category Category, m Matches) string {
	if category == Productive {
		if m.Reference != nil {
			return fmt.Sprintf(replyProductiveRef, m.Reference.String())
		}
		return replyProductive
	}
	if m.Promotional || m.HasURL {
		return replyPromotional
	}
	return replyNoAction
}
