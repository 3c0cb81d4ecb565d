package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// phraseWords is the word count for a generated phrase.
	phraseWords int
)

// phraseCmd is the parent command for recovery phrase operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var phraseCmd = &cobra.Command{
	Use:   "phrase",
	Short: "Generate and check recovery phrases",
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var phraseGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new recovery phrase",
	Long: `Generate a new BIP39 recovery phrase from the system's secure random source.

Write the words down and keep them offline. Anyone holding them can spend
every output of every address derived from them.

Examples:
  satchel phrase generate
  satchel phrase generate --words 24 -o json`,
	Args: cobra.NoArgs,
	RunE: runPhraseGenerate,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var phraseValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a recovery phrase",
	Long: `Check that a recovery phrase has a valid length, wordlist words, and checksum.

Misspelled words are reported with the closest wordlist entry.

Examples:
  satchel phrase validate
  satchel phrase validate --phrase-file ./phrase.txt`,
	Args: cobra.NoArgs,
	RunE: runPhraseValidate,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(phraseCmd)
	phraseCmd.AddCommand(phraseGenerateCmd, phraseValidateCmd)

	phraseGenerateCmd.Flags().IntVar(&phraseWords, "words", wallet.WordsShort, "number of words: 12 or 24")
	addPhraseFlag(phraseValidateCmd.Flags())
}

// PhraseResponse is the JSON result of phrase generate.
type PhraseResponse struct {
	Phrase string `json:"phrase"`
	Words  int    `json:"words"`
}

func runPhraseGenerate(cmd *cobra.Command, _ []string) error {
	cc, err := GetCmdContext(cmd)
	if err != nil {
		return err
	}

	phrase, err := wallet.GenerateMnemonicWords(phraseWords)
	if err != nil {
		return satchelerr.WithSuggestion(satchelerr.Wrap(satchelerr.ErrInvalidInput, "%v", err), "use --words 12 or --words 24")
	}

	resp := PhraseResponse{Phrase: phrase, Words: phraseWords}
	return cc.Fmt.Emit(resp, func(w io.Writer) error {
		for i, word := range strings.Fields(phrase) {
			outf(w, "%2d. %s\n", i+1, word)
		}
		outln(w)
		outln(w, "Write these words down in order and store them offline.")
		return nil
	})
}

// ValidateResponse is the JSON result of phrase validate.
type ValidateResponse struct {
	Valid       bool         `json:"valid"`
	Words       int          `json:"words"`
	Typos       []TypoResult `json:"typos,omitempty"`
	Explanation string       `json:"explanation,omitempty"`
}

// TypoResult describes one misspelled word.
type TypoResult struct {
	Position   int    `json:"position"`
	Word       string `json:"word"`
	Suggestion string `json:"suggestion,omitempty"`
}

func runPhraseValidate(cmd *cobra.Command, _ []string) error {
	cc, err := GetCmdContext(cmd)
	if err != nil {
		return err
	}
	phrase, err := readRawPhrase(cc)
	if err != nil {
		return err
	}

	resp := checkPhrase(phrase)
	err = cc.Fmt.Emit(resp, func(w io.Writer) error {
		if resp.Valid {
			outf(w, "Valid %d-word recovery phrase.\n", resp.Words)
			return nil
		}
		outln(w, "Invalid recovery phrase.")
		if resp.Explanation != "" {
			outln(w, resp.Explanation)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !resp.Valid {
		// The report is already written; the error only sets the exit code.
		return errPhraseInvalid
	}
	return nil
}

func checkPhrase(phrase string) ValidateResponse {
	resp := ValidateResponse{Words: len(strings.Fields(phrase))}
	err := wallet.ValidateMnemonic(phrase)
	if err == nil {
		resp.Valid = true
		return resp
	}

	typos := wallet.DetectTypos(phrase)
	for _, t := range typos {
		resp.Typos = append(resp.Typos, TypoResult{Position: t.Index + 1, Word: t.Word, Suggestion: t.Suggestion})
	}
	var se *satchelerr.SatchelError
	switch {
	case len(typos) > 0:
		resp.Explanation = wallet.FormatTypoSuggestions(typos)
	case resp.Words != wallet.WordsShort && resp.Words != wallet.WordsLong:
		resp.Explanation = "expected 12 or 24 words"
	case satchelerr.As(err, &se) && se.Suggestion != "":
		resp.Explanation = se.Suggestion
	}
	return resp
}

var errPhraseInvalid = &satchelerr.SatchelError{
	Code:     satchelerr.ErrInvalidPhrase.Code,
	Message:  satchelerr.ErrInvalidPhrase.Message,
	ExitCode: satchelerr.ErrInvalidPhrase.ExitCode,
}
