package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/gmsas95/medremind/internal/gateway"
	"github.com/gmsas95/medremind/internal/medication"
)

func alarmText(med medication.Medication, kind gateway.Kind) string {
	n := gateway.Content(gateway.Payload{
		MedicationID:   med.ID,
		Kind:           kind,
		MedicationName: med.Name,
		Dosage:         med.Dosage,
	})
	return fmt.Sprintf("⏰ %s\n%s (%s)", n.Title, n.Body, med.Time)
}

func alarmKeyboard(medicationID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Taken", callbackData(gateway.ActionTaken, medicationID)),
			tgbotapi.NewInlineKeyboardButtonData("😴 Snooze", callbackData(gateway.ActionSnooze, medicationID)),
			tgbotapi.NewInlineKeyboardButtonData("✖ Dismiss", callbackData(gateway.ActionDismiss, medicationID)),
		),
	)
}

func callbackData(action gateway.Action, medicationID string) string {
	return string(action) + ":" + medicationID
}

func parseCallback(data string) (gateway.Action, string, error) {
	a, id, ok := strings.Cut(data, ":")
	action := gateway.Action(a)
	if !ok || id == "" {
		return "", "", fmt.Errorf("malformed callback data %q", data)
	}
	switch action {
	case gateway.ActionTaken, gateway.ActionSnooze, gateway.ActionDismiss:
		return action, id, nil
	}
	return "", "", fmt.Errorf("unknown callback action %q", a)
}

func actionLabel(action gateway.Action) string {
	switch action {
	case gateway.ActionTaken:
		return "✅ Taken"
	case gateway.ActionSnooze:
		return "😴 Snoozed"
	default:
		return "✖ Dismissed"
	}
}

func formatList(meds []medication.Medication) string {
	if len(meds) == 0 {
		return "No medications yet."
	}

	var sb strings.Builder
	sb.WriteString("*Medications:*\n")
	for _, med := range meds {
		mark := "⬜"
		if med.Taken {
			mark = "✅"
		}
		fmt.Fprintf(&sb, "\n%s %s %s", mark, med.Time, med.Name)
		if med.Dosage != "" {
			fmt.Fprintf(&sb, " - %s", med.Dosage)
		}
	}
	return sb.String()
}

// findMedication matches by id first, then by case-insensitive name
func findMedication(meds []medication.Medication, query string) (medication.Medication, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return medication.Medication{}, false
	}
	for _, med := range meds {
		if med.ID == query {
			return med, true
		}
	}
	for _, med := range meds {
		if strings.EqualFold(med.Name, query) {
			return med, true
		}
	}
	return medication.Medication{}, false
}
