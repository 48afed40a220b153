package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.MustParse("pt-BR")

	message.SetString(lang, "notify.schedule_set.title", "Seu encontro está marcado")
	message.SetString(lang, "notify.schedule_set.body", "%s em %s, %s às %s. Confira o código de confirmação no aplicativo.")
	message.SetString(lang, "notify.schedule_set.body_generic", "Seu encontro foi agendado. Confira os detalhes no aplicativo.")

	message.SetString(lang, "notify.declined.title", "Convite recusado")
	message.SetString(lang, "notify.declined.body", "Seu convite de encontro foi recusado.")

	message.SetString(lang, "notify.withdrawn.title", "Convite retirado")
	message.SetString(lang, "notify.withdrawn.body", "Um convite de encontro enviado a você foi retirado.")

	message.SetString(lang, "notify.cancelled.title", "Encontro cancelado")
	message.SetString(lang, "notify.cancelled.body", "Seu encontro agendado foi cancelado.")

	message.SetString(lang, "notify.completed.title", "Encontro concluído")
	message.SetString(lang, "notify.completed.body", "Seu encontro foi marcado como concluído.")
	message.SetString(lang, "notify.completed.body_confirmed", "Seu encontro foi confirmado e concluído. Muito bem.")
}
