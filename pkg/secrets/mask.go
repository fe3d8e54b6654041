package secrets

import (
	"strings"

	masker "github.com/goliatone/go-masker"
)

const maskRule = "preserveEnds(2,2)"

var defaultSecretFields = []string{
	"token", "access_token", "bearer",
	"api_key", "apikey", "apiKey",
	"hmac_key", "encryption_key", "global_key",
	"client_secret", "secret", "signing_key",
}

func init() {
	// Register secret-ish fields so masking uses sane defaults.
	for _, field := range defaultSecretFields {
		masker.Default.RegisterMaskField(field, maskRule)
	}
}

// MaskValues returns a masked copy of the provided map for safe logging,
// keyed by secret name.
func MaskValues(values map[Reference]SecretValue) map[string]any {
	if len(values) == 0 {
		return nil
	}
	masked := make(map[string]any, len(values))
	for ref, val := range values {
		masked[ref.Name] = map[string]any{
			"value":   MaskValue(string(val.Data)),
			"version": val.Version,
		}
	}
	return masked
}

// MaskValue keeps the first and last two characters of value.
func MaskValue(value string) string {
	if value == "" {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	if masked, err := masker.Default.String(maskRule, value); err == nil {
		return masked
	}
	return string(runes[:2]) + strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-2:])
}
