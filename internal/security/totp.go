package security

import (
	"strings"

	"github.com/pquerna/otp/totp"
)

// ValidateTOTP checks a six-digit code against a base32 secret.
// An empty secret never validates.
func ValidateTOTP(secret, code string) bool {
	secret = strings.TrimSpace(secret)
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	return totp.Validate(code, secret)
}

// GenerateTOTPSecret creates a new base32 secret for the given account.
// The returned URL can be rendered as a QR code by authenticator apps.
func GenerateTOTPSecret(account string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tokenIssuer,
		AccountName: account,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}
