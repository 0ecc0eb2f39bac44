package bootstrap

import (
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// MinTokenLength is the shortest bot token accepted at the prompt.
const MinTokenLength = 50

// ErrInvalidTokenFormat is returned by ValidateToken for malformed operator input.
var ErrInvalidTokenFormat = errors.New("invalid token format")

// authScheme is the optional authorization prefix operators often paste along with the token.
const authScheme = "Bot "

var tokenCharset = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

var tokenValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New()
	// RegisterValidation only fails for empty tags or reserved names
	_ = v.RegisterValidation("bottoken", func(fl validator.FieldLevel) bool {
		return tokenCharset.MatchString(fl.Field().String())
	})
	return v
})

// NormalizeToken trims surrounding whitespace and strips a leading "Bot " scheme.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	token = strings.TrimPrefix(token, authScheme)
	return strings.TrimSpace(token)
}

// ValidateToken normalizes raw operator input and checks length and character set.
// Returns the normalized token or ErrInvalidTokenFormat.
func ValidateToken(raw string) (string, error) {
	token := NormalizeToken(raw)
	if err := tokenValidator().Var(token, "required,min=50,bottoken"); err != nil {
		return "", ErrInvalidTokenFormat
	}
	return token, nil
}
