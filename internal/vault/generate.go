package vault

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	alphabetLowercase = "abcdefghijklmnopqrstuvwxyz"
	alphabetUppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	alphabetNumbers   = "0123456789"
	alphabetSymbols   = "!@#$%^&*()_+-=[]{}|;:,.<>?"

	// DefaultPasswordLength is used when a request does not name a length.
	DefaultPasswordLength = 16
	// MaxPasswordLength bounds requested lengths.
	MaxPasswordLength = 1024
)

const (
	ErrInvalidLength Error = "Password length must be positive"
	ErrLengthTooLong Error = "Password length must not exceed 1024"
	ErrEmptyCharset  Error = "At least one character set must be enabled"
)

// Charset selects the character categories of a generated password.
type Charset struct {
	Lowercase bool
	Uppercase bool
	Numbers   bool
	Symbols   bool
}

// AllCharsets enables every category.
var AllCharsets = Charset{Lowercase: true, Uppercase: true, Numbers: true, Symbols: true}

func (c Charset) alphabet() string {
	var b strings.Builder
	if c.Lowercase {
		b.WriteString(alphabetLowercase)
	}
	if c.Uppercase {
		b.WriteString(alphabetUppercase)
	}
	if c.Numbers {
		b.WriteString(alphabetNumbers)
	}
	if c.Symbols {
		b.WriteString(alphabetSymbols)
	}
	return b.String()
}

// GeneratePassword draws length characters uniformly from the union of the
// enabled categories using crypto/rand.
func GeneratePassword(length int, cs Charset) (string, error) {
	if length <= 0 {
		return "", ErrInvalidLength
	}
	if length > MaxPasswordLength {
		return "", ErrLengthTooLong
	}
	alphabet := cs.alphabet()
	if alphabet == "" {
		return "", ErrEmptyCharset
	}

	max := big.NewInt(int64(len(alphabet)))
	password := make([]byte, length)
	for i := range password {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		password[i] = alphabet[n.Int64()]
	}
	return string(password), nil
}
