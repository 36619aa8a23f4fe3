package privacy

import (
	"strings"
)

// MaskMessageID masks a message identifier while keeping enough of its tail
// to correlate log lines during debugging.
// Example: "ab12cd34-5678-90ef-ab12-cd3456789012" -> "****************************89012"
func MaskMessageID(messageID string) string {
	if messageID == "" {
		return ""
	}
	return maskString(messageID, 8)
}

// MaskIdentity masks an identity name in log output.
// Example: "user123456" -> "******3456"
func MaskIdentity(name string) string {
	if name == "" {
		return ""
	}
	return maskString(name, 4)
}

// MaskCredential fully masks a credential, preserving only its length class.
func MaskCredential(credential string) string {
	if credential == "" {
		return ""
	}
	if len(credential) <= 8 {
		return "****"
	}
	return "********"
}

// MaskSensitiveFields returns a copy of the fields map with values of
// well-known sensitive keys masked. Used when verbose logging dumps
// structured payloads.
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	masked := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		str, isString := value.(string)
		if !isString {
			masked[key] = value
			continue
		}
		switch strings.ToLower(key) {
		case "password", "credential", "secret":
			masked[key] = MaskCredential(str)
		case "username", "identity", "from", "to":
			masked[key] = MaskIdentity(str)
		case "message_id", "messageid":
			masked[key] = MaskMessageID(str)
		default:
			masked[key] = value
		}
	}
	return masked
}

func maskString(s string, keepLast int) string {
	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}
