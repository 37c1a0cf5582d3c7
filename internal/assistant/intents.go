package assistant

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
)

type intent int

const (
	intentNone intent = iota
	intentMenu
	intentBook
	intentLocation
	intentAdvisor
	intentProcedure
)

var intentPatterns = []struct {
	intent intent
	re     *regexp.Regexp
}{
	{intentMenu, regexp.MustCompile(`\b(hola|buenas|menu|hello|hi)\b`)},
	{intentBook, regexp.MustCompile(`\b(agendar|cita|agenda|programar|reservar|book|appointment)\b`)},
	{intentLocation, regexp.MustCompile(`\b(ubicacion|direccion|como llegar|mapa|location|address)\b`)},
	{intentAdvisor, regexp.MustCompile(`\b(asesor|asesora|humano|ayuda|advisor|help)\b`)},
}

// fold lowercases s and strips diacritics.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// detectIntent classifies free text with keyword rules, first match wins.
func detectIntent(c *clinic.Clinic, text string) (intent, clinic.Procedure) {
	t := fold(text)
	if t == "" {
		return intentNone, clinic.Procedure{}
	}
	for _, p := range intentPatterns {
		if p.re.MatchString(t) {
			return p.intent, clinic.Procedure{}
		}
	}
	if proc, ok := c.Match(t); ok {
		return intentProcedure, proc
	}
	return intentNone, clinic.Procedure{}
}

var nameRe = regexp.MustCompile(`^[A-Za-zÁÉÍÓÚÜÑáéíóúüñ.'\- ]{3,60}$`)

// validName accepts 3 to 60 letters, spaces and name punctuation.
func validName(s string) bool {
	s = strings.TrimSpace(s)
	return nameRe.MatchString(s) && strings.ContainsFunc(s, unicode.IsLetter)
}

// looksLikeName is stricter than validName: no sentence punctuation, so a
// short question is not mistaken for a name.
func looksLikeName(s string) bool {
	return validName(s) && !strings.ContainsAny(s, "?!.:,;@0123456789")
}

// splitAdvisorText reads "Name\nQuestion" messages. ok is false when the
// first line is not a name or no question follows.
func splitAdvisorText(text string) (name, question string, ok bool) {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 || !validName(lines[0]) {
		return "", "", false
	}
	return lines[0], strings.Join(lines[1:], "\n"), true
}
