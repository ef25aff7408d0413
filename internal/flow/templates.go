// Canned script templates and operator-visible status labels.
package flow

import "github.com/recruitflow/recruitflow/internal/models"

// DefaultTemplates is the scripted text for each message key. Individual
// entries can be overridden from configuration; keys without an override
// fall back to these.
var DefaultTemplates = map[models.MessageKey]string{
	models.MsgContact: "Доброго дня! 🙂 Мене звати Володимир, я з приводу вакансії. Підкажіть, чи актуально для вас?",
	models.MsgScreeningIntro: "Щоб зекономити ваш час, дайте відповідь на три короткі питання:\n" +
		"1. Скільки вам років?\n2. Чим займаєтесь зараз?\n3. Чи був досвід роботи у переписках?",
	models.MsgCompanyIntro: "Дякую! Коротко про компанію: ми міжнародна dating-платформа, працюємо повністю онлайн. " +
		"Ваша задача — вести переписки за готовими сценаріями. Чи готові перейти далі?",
	models.MsgVoiceFallback: "Записав для вас коротке голосове з деталями, але поки надішлю текстом: " +
		"робота повністю віддалена, оплата щотижня. Напишіть, коли будете готові продовжити.",
	models.MsgScheduleBlock: "Працюємо позмінно: денна зміна з 9:00 до 17:00, нічна з 17:00 до 1:00. " +
		"Кожна зміна триває 8 годин, вихідні гнучкі.",
	models.MsgShiftQuestion:   "Яка зміна вам зручніша — денна чи нічна?",
	models.MsgScheduleConfirm: "Зафіксував. Підтвердіть, будь ласка, що графік вам підходить, і я надішлю приклади роботи та тестове завдання.",
	models.MsgProofIntro:      "Надсилаю приклади переписок та скріни виплат 👇",
	models.MsgTestIntro:       "І невелике тестове завдання — три короткі питання. Відповідайте по черзі, як зручно.",
	models.MsgFormIntro:       "Фінальний етап перед навчанням. Заповніть анкету — і передаю вас менеджеру навчання.",
	models.MsgConfirm:         "Дякую! Передаю вас на навчання 🙌",
	models.MsgReferral:        "Також хочу повідомити, що в нашій компанії діє реферальна програма 💰. Якщо порадите нам кандидата, який пройде навчання, ви отримаєте бонус.",
	models.MsgGateConfirm:     "Чи залишились ще питання?",
	models.MsgGateReminder:    "Підкажіть, чи вдалося переглянути моє повідомлення? Якщо питань немає — продовжимо 🙂",
	models.MsgAgeReject:       "Дякую за відповіді! На жаль, за віковими вимогами ця вакансія вам не підійде.",
}

// Operator-visible status labels. Once a row reaches a terminal status
// it is never overwritten (see the sheets package).
const (
	StatusNew          = "🆕 Новий"
	StatusGreeting     = "👋 Привітання"
	StatusScreening    = "📋 Скринінг"
	StatusCompanyIntro = "🏢 Знайомство з компанією"
	StatusSchedule     = "🕒 Графік"
	StatusProof        = "📸 Приклади"
	StatusTest         = "📝 Тестове"
	StatusForm         = "📄 Анкета"
	StatusConfirmed    = "✅ Погодився Дякую! 🙌 Передаю вас на етап навчання"
	StatusReferral     = "🎁 Реферал Також хочу повідомити, що в нашій компанії діє реферальна програма 💰."
	StatusStopped      = "⛔ Відмовився"
	StatusQuestion     = "❓ Питання"
	StatusDialog       = "💬 В діалозі"
)

// StatusForStep maps a stored funnel step to its CRM status label. Used
// by the resync path, which rebuilds rows from state without a route.
func StatusForStep(step models.FunnelStep) string {
	switch step {
	case models.StepScreeningIntro, models.StepScreeningWait:
		return StatusScreening
	case models.StepCompanyIntro, models.StepVoiceWait:
		return StatusCompanyIntro
	case models.StepScheduleBlock, models.StepScheduleShiftWait, models.StepScheduleConfirm:
		return StatusSchedule
	case models.StepProofForward:
		return StatusProof
	case models.StepTestReview:
		return StatusTest
	case models.StepFormForward:
		return StatusForm
	case models.StepHandoff:
		return StatusConfirmed
	case models.StepAgeRejected:
		return StatusReferral
	default:
		return StatusDialog
	}
}

// StatusForRoute maps a flow decision to the CRM status label it should
// record; empty string leaves the stored status untouched.
func StatusForRoute(route models.Route) string {
	switch route {
	case models.RouteScreeningCollect:
		return StatusScreening
	case models.RouteCompanyIntro:
		return StatusCompanyIntro
	case models.RouteVoiceBranch, models.RouteVoiceHold:
		return StatusCompanyIntro
	case models.RouteScheduleShiftWait, models.RouteShiftPrompt, models.RouteScheduleConfirm:
		return StatusSchedule
	case models.RouteProofForward:
		return StatusProof
	case models.RouteTestCollect:
		return StatusTest
	case models.RouteFormForward:
		return StatusForm
	case models.RouteHandoff:
		return StatusConfirmed
	case models.RouteAgeReject, models.RouteAgeRejectReferral:
		return StatusReferral
	case models.RoutePause:
		return StatusStopped
	case models.RouteAnswerQuestion:
		return StatusQuestion
	default:
		return ""
	}
}
