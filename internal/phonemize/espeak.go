package phonemize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/mattn/go-shellwords"
)

// langSwitch matches the "(en)" style markers espeak-ng inserts when a word is
// spoken with another language's rules.
var langSwitch = regexp.MustCompile(`\([a-z]{2,3}(?:-[a-z0-9]+)*\)`)

// DefaultCommand runs espeak-ng in quiet IPA mode, reading text from stdin.
const DefaultCommand = "espeak-ng -q --ipa"

// Espeak phonemizes by running an espeak-ng compatible executable. The voice
// flag (-v <lang>) is appended to the configured command for each call.
type Espeak struct {
	args []string
}

// NewEspeak parses command with shell quoting rules. An empty command selects
// DefaultCommand.
func NewEspeak(command string) (*Espeak, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse phonemizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("phonemizer command empty")
	}
	return &Espeak{args: args}, nil
}

// Executable returns the program the phonemizer runs.
func (e *Espeak) Executable() string {
	return e.args[0]
}

// Phonemize implements Phonemizer. Output lines (one per clause) are joined
// with single spaces.
func (e *Espeak) Phonemize(ctx context.Context, text, lang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if strings.TrimSpace(lang) == "" {
		return "", &Error{Lang: lang, Text: text, Err: errors.New("empty language code")}
	}

	args := append(append([]string(nil), e.args[1:]...), "-v", lang)
	cmd := exec.CommandContext(ctx, e.args[0], args...)
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return "", &Error{Lang: lang, Text: text, Err: err}
	}
	// espeak-ng reports unknown voices on stderr but still exits 0.
	if msg := strings.TrimSpace(stderr.String()); strings.Contains(strings.ToLower(msg), "voice") {
		return "", &Error{Lang: lang, Text: text, Err: errors.New(msg)}
	}

	out := langSwitch.ReplaceAllString(stdout.String(), " ")
	return strings.Join(strings.Fields(out), " "), nil
}

// Version runs "<executable> --version" and returns the first output line.
func (e *Espeak) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, e.args[0], "--version").Output()
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line, nil
}
