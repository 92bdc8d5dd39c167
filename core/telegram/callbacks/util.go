// Package callbacks decodes inline button data.
package callbacks

import "strings"

// ParseCallbackData parses Telebot's \f<unique>|<payload> encoding.
// Returns unique and payload (may be empty).
func ParseCallbackData(data string) (string, string) {
	raw := strings.TrimPrefix(data, "\f")
	// Some clients echo the escape literally.
	raw = strings.TrimPrefix(raw, `\f`)
	parts := strings.SplitN(raw, "|", 2)
	unique := strings.TrimSpace(parts[0])
	payload := ""
	if len(parts) == 2 {
		payload = parts[1]
	}
	return unique, payload
}

// EncodeCallbackData is the inverse of ParseCallbackData.
func EncodeCallbackData(unique, payload string) string {
	if payload == "" {
		return "\f" + unique
	}
	return "\f" + unique + "|" + payload
}
