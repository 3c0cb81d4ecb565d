package wallet_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

func TestGenerateMnemonic(t *testing.T) {
	t.Parallel()

	phrase, err := wallet.GenerateMnemonic()
	require.NoError(t, err)
	assert.Len(t, strings.Fields(phrase), 12)
	assert.True(t, wallet.ValidPhrase(phrase))

	long, err := wallet.GenerateMnemonicWords(24)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(long), 24)
	require.NoError(t, wallet.ValidateMnemonic(long))

	other, err := wallet.GenerateMnemonic()
	require.NoError(t, err)
	assert.NotEqual(t, phrase, other)

	_, err = wallet.GenerateMnemonicWords(15)
	require.ErrorIs(t, err, wallet.ErrInvalidWordCount)
}

func TestValidPhrase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"abandon vector", abandonPhrase, true},
		{"legal winner", "legal winner thank year wave sausage worth useful legal winner thank yellow", true},
		{"zoo wrong", "zoo zoo zoo zoo zoo zoo zoo zoo zoo zoo zoo wrong", true},
		{"24 words", strings.Repeat("abandon ", 23) + "art", true},
		{"upper case and extra spaces", "  ABANDON abandon  abandon abandon abandon abandon abandon abandon abandon abandon abandon ABOUT ", true},
		{"numbered list", "1. abandon\n2. abandon\n3. abandon\n4. abandon\n5. abandon\n6. abandon\n7. abandon\n8. abandon\n9. abandon\n10. abandon\n11. abandon\n12. about", true},
		{"inline numbering", "1) abandon 2) abandon 3) abandon 4) abandon 5) abandon 6) abandon 7) abandon 8) abandon 9) abandon 10) abandon 11) abandon 12) about", true},
		{"comma separated", "abandon,abandon,abandon,abandon,abandon,abandon,abandon,abandon,abandon,abandon,abandon,about", true},
		{"bad checksum", strings.Repeat("abandon ", 12), false},
		{"word not in list", "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abot", false},
		{"eleven words", strings.Repeat("abandon ", 10) + "about", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.valid, wallet.ValidPhrase(tt.input))
			err := wallet.ValidateMnemonic(tt.input)
			if tt.valid {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, satchelerr.ErrInvalidPhrase)
			}
		})
	}
}

func TestValidateMnemonic_TypoSuggestion(t *testing.T) {
	t.Parallel()

	err := wallet.ValidateMnemonic(strings.Repeat("abandon ", 11) + "abuot")
	require.ErrorIs(t, err, satchelerr.ErrInvalidPhrase)

	var se *satchelerr.SatchelError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Suggestion, "word 12: 'abuot'")
}

func TestSuggestWord(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abandon", wallet.SuggestWord("abandon"))
	assert.Equal(t, "abandon", wallet.SuggestWord("abandn"))
	assert.Equal(t, "zoo", wallet.SuggestWord("ZOO"))
	assert.Empty(t, wallet.SuggestWord("xxxxxxxxxxxx"))
}

func TestDetectTypos(t *testing.T) {
	t.Parallel()

	typos := wallet.DetectTypos("abandon abandn abandon qqqqqqqqqq")
	require.Len(t, typos, 2)
	assert.Equal(t, 1, typos[0].Index)
	assert.Equal(t, "abandon", typos[0].Suggestion)
	assert.Equal(t, 1, typos[0].Distance)
	assert.Equal(t, 3, typos[1].Index)
	assert.Empty(t, typos[1].Suggestion)

	text := wallet.FormatTypoSuggestions(typos)
	assert.Equal(t, "word 2: 'abandn' - did you mean 'abandon'?\nword 4: 'qqqqqqqqqq' is not a valid BIP39 word", text)

	assert.Empty(t, wallet.DetectTypos(abandonPhrase))
	assert.Empty(t, wallet.FormatTypoSuggestions(nil))
}

func TestIsValidWord(t *testing.T) {
	t.Parallel()

	assert.True(t, wallet.IsValidWord("abandon"))
	assert.True(t, wallet.IsValidWord("Zoo"))
	assert.False(t, wallet.IsValidWord("bitcoin"))
}
