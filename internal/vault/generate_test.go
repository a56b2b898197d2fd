package vault

import (
	"math"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePassword(t *testing.T) {
	cases := []struct {
		name    string
		length  int
		charset Charset
		pattern string
	}{
		{"lowercase only", 16, Charset{Lowercase: true}, `^[a-z]{16}$`},
		{"uppercase only", 10, Charset{Uppercase: true}, `^[A-Z]{10}$`},
		{"numbers only", 6, Charset{Numbers: true}, `^[0-9]{6}$`},
		{"letters", 32, Charset{Lowercase: true, Uppercase: true}, `^[a-zA-Z]{32}$`},
		{"single char", 1, AllCharsets, `^.$`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := GeneratePassword(tc.length, tc.charset)
			require.NoError(t, err)
			assert.Len(t, p, tc.length)
			assert.Regexp(t, regexp.MustCompile(tc.pattern), p)
		})
	}
}

func TestGeneratePassword_SymbolsOnly(t *testing.T) {
	p, err := GeneratePassword(64, Charset{Symbols: true})
	require.NoError(t, err)
	for _, c := range p {
		assert.True(t, strings.ContainsRune(alphabetSymbols, c), "unexpected %q in %q", c, p)
	}
}

func TestGeneratePassword_CoversUnion(t *testing.T) {
	// 512 draws from 88 characters miss a whole category with negligible probability.
	p, err := GeneratePassword(512, AllCharsets)
	require.NoError(t, err)
	assert.True(t, strings.ContainsAny(p, alphabetLowercase))
	assert.True(t, strings.ContainsAny(p, alphabetUppercase))
	assert.True(t, strings.ContainsAny(p, alphabetNumbers))
	assert.True(t, strings.ContainsAny(p, alphabetSymbols))
}

func TestGeneratePassword_Invalid(t *testing.T) {
	_, err := GeneratePassword(0, AllCharsets)
	assert.ErrorIs(t, err, ErrInvalidLength)
	_, err = GeneratePassword(-3, AllCharsets)
	assert.ErrorIs(t, err, ErrInvalidLength)
	_, err = GeneratePassword(8, Charset{})
	assert.ErrorIs(t, err, ErrEmptyCharset)
}

func TestGeneratePassword_LengthBound(t *testing.T) {
	p, err := GeneratePassword(MaxPasswordLength, AllCharsets)
	require.NoError(t, err)
	assert.Len(t, p, MaxPasswordLength)

	for _, n := range []int{MaxPasswordLength + 1, 1 << 40, math.MaxInt} {
		_, err = GeneratePassword(n, AllCharsets)
		assert.ErrorIs(t, err, ErrLengthTooLong, "length %d", n)
	}
}

func TestGeneratePassword_Distinct(t *testing.T) {
	a, err := GeneratePassword(DefaultPasswordLength, AllCharsets)
	require.NoError(t, err)
	b, err := GeneratePassword(DefaultPasswordLength, AllCharsets)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
