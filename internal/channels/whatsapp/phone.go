package whatsapp

import "strings"

// NormalizePhone canonicalizes Mexican mobile numbers to the 521 + 10 digit
// form WhatsApp reports for senders. Other inputs are reduced to digits.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case strings.HasPrefix(digits, "521"):
		return digits
	case strings.HasPrefix(digits, "52") && len(digits) == 12:
		return "521" + digits[2:]
	case len(digits) == 10:
		return "521" + digits
	default:
		return digits
	}
}

// NormalizePhones normalizes and deduplicates a list, keeping order.
func NormalizePhones(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		p := NormalizePhone(r)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
