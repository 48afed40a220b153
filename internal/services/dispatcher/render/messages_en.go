package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, "notify.schedule_set.title", "Your date is set")
	message.SetString(lang, "notify.schedule_set.body", "%s at %s, %s %s. Check the app for your confirmation code.")
	message.SetString(lang, "notify.schedule_set.body_generic", "Your date has been scheduled. Check the app for details.")

	message.SetString(lang, "notify.declined.title", "Invitation declined")
	message.SetString(lang, "notify.declined.body", "Your date invitation was declined.")

	message.SetString(lang, "notify.withdrawn.title", "Invitation withdrawn")
	message.SetString(lang, "notify.withdrawn.body", "A date invitation sent to you was withdrawn.")

	message.SetString(lang, "notify.cancelled.title", "Date cancelled")
	message.SetString(lang, "notify.cancelled.body", "Your scheduled date was cancelled.")

	message.SetString(lang, "notify.completed.title", "Date completed")
	message.SetString(lang, "notify.completed.body", "Your date is marked as completed.")
	message.SetString(lang, "notify.completed.body_confirmed", "Your date is confirmed and completed. Nice work.")
}
