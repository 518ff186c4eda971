package cnwlicensing

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

const (
	// KeySize is the length of a canonical license key in bytes.
	KeySize = 64

	// KeyHexLength is the length of a license key in hex presentation.
	KeyHexLength = 2 * KeySize

	// KeyWordCount is the number of dictionary words in word presentation,
	// one word per key byte.
	KeyWordCount = KeySize

	wordsPerGroup  = 4
	wordGroupCount = KeyWordCount / wordsPerGroup
)

// KeyFormat selects a textual presentation of a license key.
type KeyFormat int

const (
	// FormatHex presents a key as 128 lowercase hexadecimal characters.
	FormatHex KeyFormat = iota

	// FormatWords presents a key as 64 dictionary words in 16 groups of 4,
	// words joined by "-" within a group, groups joined by " ".
	FormatWords
)

func (f KeyFormat) String() string {
	switch f {
	case FormatHex:
		return "hex"
	case FormatWords:
		return "words"
	default:
		return fmt.Sprintf("KeyFormat(%d)", int(f))
	}
}

// LicenseKey is the canonical 64-byte identity of a license.
// The zero value is not a valid issued key; use GenerateLicenseKey or one
// of the LicenseKeyFrom* constructors.
type LicenseKey [KeySize]byte

// LicenseKeyFromHex decodes the hex presentation of a license key.
// The input must be exactly 128 hexadecimal characters; case does not
// matter. Anything else fails with ErrKeyFormat.
func LicenseKeyFromHex(s string) (LicenseKey, error) {
	if len(s) != KeyHexLength {
		return LicenseKey{}, fmt.Errorf("%w: expected %d hex characters, got %d", ErrKeyFormat, KeyHexLength, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return LicenseKey{}, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	var k LicenseKey
	copy(k[:], raw)
	return k, nil
}

// LicenseKeyFromWords decodes the word presentation of a license key.
// The input is case-insensitive and may be space-and-hyphen delimited
// (the emitted form) or purely hyphen-delimited. A token count other
// than 64 or a word outside the dictionary fails with ErrKeyFormat.
func LicenseKeyFromWords(s string) (LicenseKey, error) {
	tokens := splitWordKey(s)
	if len(tokens) != KeyWordCount {
		return LicenseKey{}, fmt.Errorf("%w: expected %d words, got %d", ErrKeyFormat, KeyWordCount, len(tokens))
	}
	var k LicenseKey
	for i, token := range tokens {
		b, ok := wordIndex[strings.ToLower(token)]
		if !ok {
			return LicenseKey{}, fmt.Errorf("%w: unknown word %q", ErrKeyFormat, token)
		}
		k[i] = b
	}
	return k, nil
}

// ParseLicenseKey decodes a license key in either presentation, choosing
// the codec via DetectKeyFormat. Callers that know the format should use
// LicenseKeyFromHex or LicenseKeyFromWords directly.
func ParseLicenseKey(s string) (LicenseKey, error) {
	switch DetectKeyFormat(s) {
	case FormatHex:
		return LicenseKeyFromHex(s)
	default:
		return LicenseKeyFromWords(s)
	}
}

// DetectKeyFormat guesses the presentation of a license key string: a
// string of exactly 128 characters that parses entirely as hexadecimal
// is FormatHex, everything else is FormatWords. The heuristic is
// ambiguous for degenerate inputs; it never fails, it only dispatches.
func DetectKeyFormat(s string) KeyFormat {
	if len(s) == KeyHexLength && isHexString(s) {
		return FormatHex
	}
	return FormatWords
}

// NormalizeKey converts a license key in either presentation to its
// canonical lowercase hex form.
func NormalizeKey(s string) (string, error) {
	k, err := ParseLicenseKey(s)
	if err != nil {
		return "", err
	}
	return k.Hex(), nil
}

// Hex returns the canonical 128-character lowercase hex presentation.
func (k LicenseKey) Hex() string {
	return hex.EncodeToString(k[:])
}

// Words returns the word presentation: 16 groups of 4 uppercase
// dictionary words, words joined by "-", groups joined by " ".
func (k LicenseKey) Words() string {
	groups := make([]string, wordGroupCount)
	words := make([]string, wordsPerGroup)
	for g := 0; g < wordGroupCount; g++ {
		for i := 0; i < wordsPerGroup; i++ {
			words[i] = strings.ToUpper(wordTable[k[g*wordsPerGroup+i]])
		}
		groups[g] = strings.Join(words, "-")
	}
	return strings.Join(groups, " ")
}

// Encode returns the presentation selected by f.
func (k LicenseKey) Encode(f KeyFormat) string {
	if f == FormatWords {
		return k.Words()
	}
	return k.Hex()
}

func (k LicenseKey) String() string {
	return k.Hex()
}

// splitWordKey tokenizes a word-format key on hyphens and whitespace.
func splitWordKey(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || unicode.IsSpace(r)
	})
}

func isHexString(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
