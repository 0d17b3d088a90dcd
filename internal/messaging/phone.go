package messaging

import "strings"

const jidSuffix = "@s.whatsapp.net"

// NormalizeWhatsAppNumber reduces a phone number or WhatsApp JID to the bare digits the
// gateway addresses, e.g. "+55 (11) 98888-7777" and "5511988887777@s.whatsapp.net" both
// become "5511988887777". It returns "" when no digits remain.
func NormalizeWhatsAppNumber(value string) string {
	value = strings.TrimSpace(value)
	if i := strings.Index(value, "@"); i >= 0 {
		if !strings.EqualFold(value[i:], jidSuffix) {
			return ""
		}
		value = value[:i]
	}
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
