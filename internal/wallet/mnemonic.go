// Package wallet derives BIP84 key and address hierarchies from a BIP39
// recovery phrase. Seeds and signing keys only live inside scoped callbacks
// and are zeroed when those return.
package wallet

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/cosmos/go-bip39"

	"github.com/mrz1836/satchel/internal/secure"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Supported phrase lengths.
const (
	WordsShort = 12 // 128 bits of entropy
	WordsLong  = 24 // 256 bits of entropy
)

// ErrInvalidWordCount indicates the phrase must be 12 or 24 words.
var ErrInvalidWordCount = errors.New("word count must be 12 or 24")

//nolint:gochecknoglobals // Compiled once
var (
	whitespaceRegex   = regexp.MustCompile(`\s+`)
	numberedListRegex = regexp.MustCompile(`(?m)^\s*\d+[\.\)\:]\s*`)
	inlineNumberRegex = regexp.MustCompile(`(^|\s)\d+[\.\)\:]\s*`)
	bulletListRegex   = regexp.MustCompile(`(?m)^\s*[-*•]\s*`)
)

// GenerateMnemonic returns a new 12-word phrase.
func GenerateMnemonic() (string, error) {
	return GenerateMnemonicWords(WordsShort)
}

// GenerateMnemonicWords returns a new phrase of 12 or 24 words.
func GenerateMnemonicWords(wordCount int) (string, error) {
	var size int
	switch wordCount {
	case WordsShort:
		size = 16
	case WordsLong:
		size = 32
	default:
		return "", ErrInvalidWordCount
	}

	entropy, err := secure.RandomBytes(size)
	if err != nil {
		return "", satchelerr.Wrap(err, "reading entropy")
	}
	defer secure.Zero(entropy)

	return bip39.NewMnemonic(entropy)
}

// ValidPhrase reports whether phrase is a valid BIP39 English mnemonic of
// 12 or 24 words.
func ValidPhrase(phrase string) bool {
	return ValidateMnemonic(phrase) == nil
}

// ValidateMnemonic returns ErrInvalidPhrase unless the phrase has a supported
// length, only wordlist words, and a valid checksum. When misspelled words are
// found the error suggests corrections.
func ValidateMnemonic(phrase string) error {
	normalized := NormalizeMnemonicInput(phrase)
	words := strings.Fields(normalized)
	if len(words) != WordsShort && len(words) != WordsLong {
		return satchelerr.WithDetails(satchelerr.ErrInvalidPhrase, map[string]string{
			"words": strconv.Itoa(len(words)),
		})
	}

	if typos := DetectTypos(normalized); len(typos) > 0 {
		return satchelerr.WithSuggestion(satchelerr.ErrInvalidPhrase, FormatTypoSuggestions(typos))
	}

	// Validates the checksum as well as the words.
	if _, err := bip39.MnemonicToByteArray(normalized); err != nil {
		return satchelerr.WithSuggestion(satchelerr.ErrInvalidPhrase, "checksum does not match; check the word order")
	}
	return nil
}

// NormalizeMnemonicInput lower-cases the input, strips list numbering,
// bullets, and commas, and collapses whitespace.
func NormalizeMnemonicInput(input string) string {
	input = strings.ToLower(input)
	input = numberedListRegex.ReplaceAllString(input, " ")
	input = bulletListRegex.ReplaceAllString(input, " ")
	input = strings.ReplaceAll(input, ",", " ")
	input = inlineNumberRegex.ReplaceAllString(input, " ")
	input = whitespaceRegex.ReplaceAllString(input, " ")
	return strings.TrimSpace(input)
}

//nolint:gochecknoglobals // Built once from the wordlist
var wordIndex = sync.OnceValue(func() map[string]struct{} {
	m := make(map[string]struct{}, len(bip39.WordList))
	for _, w := range bip39.WordList {
		m[w] = struct{}{}
	}
	return m
})

// IsValidWord reports whether word is in the English wordlist.
func IsValidWord(word string) bool {
	_, ok := wordIndex()[strings.ToLower(word)]
	return ok
}

// MaxTypoDistance is the largest edit distance offered as a suggestion.
const MaxTypoDistance = 2

// TypoInfo describes a word that is not in the wordlist.
type TypoInfo struct {
	Index      int    // 0-based position
	Word       string // as typed
	Suggestion string // closest wordlist entry, empty if none is close
	Distance   int
}

// SuggestWord returns the closest wordlist entry within MaxTypoDistance, or "".
func SuggestWord(input string) string {
	input = strings.ToLower(input)
	best := math.MaxInt
	var suggestion string
	for _, word := range bip39.WordList {
		d := levenshtein.ComputeDistance(input, word)
		if d == 0 {
			return word
		}
		if d < best {
			best = d
			suggestion = word
		}
	}
	if best <= MaxTypoDistance {
		return suggestion
	}
	return ""
}

// DetectTypos lists the words of phrase that are not in the wordlist.
func DetectTypos(phrase string) []TypoInfo {
	var typos []TypoInfo
	for i, word := range strings.Fields(NormalizeMnemonicInput(phrase)) {
		if IsValidWord(word) {
			continue
		}
		t := TypoInfo{Index: i, Word: word, Suggestion: SuggestWord(word)}
		if t.Suggestion != "" {
			t.Distance = levenshtein.ComputeDistance(word, t.Suggestion)
		}
		typos = append(typos, t)
	}
	return typos
}

// FormatTypoSuggestions renders typos one per line with 1-based positions.
func FormatTypoSuggestions(typos []TypoInfo) string {
	lines := make([]string, 0, len(typos))
	for _, t := range typos {
		line := "word " + strconv.Itoa(t.Index+1) + ": '" + t.Word + "'"
		if t.Suggestion != "" {
			line += " - did you mean '" + t.Suggestion + "'?"
		} else {
			line += " is not a valid BIP39 word"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
