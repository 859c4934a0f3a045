package utils

const maskedSecret = "*****"

// MaskSecret keeps enough of a credential to tell keys apart in logs.
// An empty value stays empty so an unset key is visible as such.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return maskedSecret
	default:
		return s[:4] + maskedSecret
	}
}
