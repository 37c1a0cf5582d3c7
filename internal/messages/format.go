// Package messages renders the patient and agent facing copy as WhatsApp
// payloads, in Spanish or English.
package messages

import (
	"fmt"
	"time"

	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
)

var (
	daysES   = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	monthsES = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

func pick(lang clinic.Language, es, en string) string {
	if lang == clinic.English {
		return en
	}
	return es
}

// FormatDay renders a local date like "jueves 15 de octubre".
func FormatDay(t time.Time, lang clinic.Language) string {
	if lang == clinic.English {
		return t.Format("Monday, January 2")
	}
	return fmt.Sprintf("%s %d de %s", daysES[t.Weekday()], t.Day(), monthsES[t.Month()-1])
}

// FormatWhen renders a start time like "jueves 15 de octubre, 09:00".
func FormatWhen(t time.Time, lang clinic.Language) string {
	return FormatDay(t, lang) + ", " + t.Format("15:04")
}

func periodLabel(p clinic.Period, lang clinic.Language) string {
	if p == clinic.Evening {
		return pick(lang, "🌇 Tarde", "🌇 Afternoon")
	}
	return pick(lang, "🌅 Mañana", "🌅 Morning")
}
