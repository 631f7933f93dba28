// Package solver implements the audio transcription service contract:
// how a solve request is encoded and what counts as a usable answer.
package solver

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

const (
	minTranscriptionLen = 2
	maxTranscriptionLen = 50
)

// BuildForm encodes a solve request. Solver services take the audio
// challenge URL and the language tag as URL-encoded form fields.
func BuildForm(audioURL, lang string) url.Values {
	return url.Values{
		"input": {audioURL},
		"lang":  {lang},
	}
}

// ValidateTranscription checks a solver response body and returns the
// trimmed transcription. Answers outside the plausible length range or
// containing markup are rejected, which makes the attempt retryable
// against another endpoint.
func ValidateTranscription(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)

	length := utf8.RuneCountInString(trimmed)
	if length < minTranscriptionLen || length > maxTranscriptionLen {
		return "", fmt.Errorf("%w: length %d", types.ErrInvalidTranscription, length)
	}

	if strings.ContainsAny(trimmed, "<>") {
		return "", fmt.Errorf("%w: response contains markup", types.ErrInvalidTranscription)
	}

	return trimmed, nil
}
