package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/mrz1836/satchel/internal/fileutil"
	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// maxPhraseFileSize bounds --phrase-file reads. A 24 word phrase is well
// under 300 bytes.
const maxPhraseFileSize = 4096

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// phraseFile is a file holding the recovery phrase.
	phraseFile string
	// askPassphrase prompts for a BIP39 passphrase.
	askPassphrase bool
)

// promptSecretFn reads a line without echo. Tests replace it.
//
//nolint:gochecknoglobals // Replaced in tests
var promptSecretFn = promptSecret

// promptSecret prints prompt to stderr and reads hidden input from the
// terminal on stdin.
func promptSecret(prompt string) (string, error) {
	outf(os.Stderr, "%s", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd())) //nolint:gosec // G115: Fd() returns uintptr, safe conversion for term.ReadPassword
	outln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(b), nil
}

// readPhrase returns the normalized, validated recovery phrase.
func readPhrase(cc *CommandContext) (string, error) {
	phrase, err := readRawPhrase(cc)
	if err != nil {
		return "", err
	}
	if err = wallet.ValidateMnemonic(phrase); err != nil {
		return "", err
	}
	return phrase, nil
}

// readRawPhrase reads the recovery phrase from --phrase-file, a hidden prompt
// when stdin is a terminal, or the first line of stdin otherwise, and
// normalizes it without validating.
func readRawPhrase(cc *CommandContext) (string, error) {
	var raw string
	switch {
	case phraseFile != "":
		data, exposed, err := fileutil.ReadLimited(phraseFile, maxPhraseFileSize)
		if err != nil {
			return "", satchelerr.WithSuggestion(
				satchelerr.Wrap(satchelerr.ErrInvalidInput, "reading phrase file: %v", err),
				"check the --phrase-file path",
			)
		}
		if exposed {
			output.Warnf(cc.Stderr, "%s is readable by other users; restrict it with chmod 600", phraseFile)
		}
		raw = string(data)
	case isTerminalReader(cc.Stdin):
		s, err := promptSecretFn("Enter recovery phrase: ")
		if err != nil {
			return "", err
		}
		raw = s
	default:
		line, err := bufio.NewReader(cc.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading phrase from stdin: %w", err)
		}
		raw = line
	}

	return wallet.NormalizeMnemonicInput(raw), nil
}

// readPassphrase returns the BIP39 passphrase, or "" unless --passphrase was
// given.
func readPassphrase() (string, error) {
	if !askPassphrase {
		return "", nil
	}
	return promptSecretFn("Enter BIP39 passphrase: ")
}

// secrets is the key material of one command. It lives only for the
// command's duration.
type secrets struct {
	phrase     string
	passphrase string
}

// readSecrets reads and validates the phrase, then the optional passphrase.
func readSecrets(cc *CommandContext) (secrets, error) {
	phrase, err := readPhrase(cc)
	if err != nil {
		return secrets{}, err
	}
	passphrase, err := readPassphrase()
	if err != nil {
		return secrets{}, err
	}
	return secrets{phrase: phrase, passphrase: passphrase}, nil
}

func isTerminalReader(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && f != nil && term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: Fd() returns uintptr, safe conversion for term.IsTerminal
}

// addPhraseFlag registers --phrase-file.
func addPhraseFlag(fs *pflag.FlagSet) {
	fs.StringVar(&phraseFile, "phrase-file", "", "file containing the recovery phrase (default: prompt or stdin)")
}

// addSecretFlags registers the phrase input flags of a command that derives
// keys.
func addSecretFlags(fs *pflag.FlagSet) {
	addPhraseFlag(fs)
	fs.BoolVar(&askPassphrase, "passphrase", false, "prompt for a BIP39 passphrase")
}

// outf is a helper for CLI output that ignores write errors (standard pattern for CLI tools).
//
//nolint:errcheck // CLI output writes are intentionally unchecked
func outf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}

// outln is a helper for CLI output with newline.
//
//nolint:errcheck // CLI output writes are intentionally unchecked
func outln(w io.Writer, args ...any) {
	fmt.Fprintln(w, args...)
}
