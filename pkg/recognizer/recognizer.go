// Package recognizer defines the contract between the soundboard's speaker
// registry and a constrained-vocabulary speech recognition engine.
//
// An [Engine] produces per-utterance [Handle] values restricted to a fixed
// set of trigger words and phrases. Handles accumulate mono PCM and yield a
// final transcript with per-word confidence once the speaker goes silent.
//
// This package lives under pkg/ because engine adapters (e.g. recognizer/vosk)
// are expected to implement [Engine] and [Handle].
package recognizer

import (
	"fmt"
	"strings"
)

// Language identifies a recognition model. Each configured language is backed
// by its own acoustic model and gets its own recognizer handle per speaker.
type Language string

const (
	English Language = "english"
	Turkish Language = "turkish"
	Dutch   Language = "dutch"
)

// Languages lists all supported languages in a stable order.
func Languages() []Language {
	return []Language{English, Turkish, Dutch}
}

// ParseLanguage parses a case-insensitive language name.
func ParseLanguage(s string) (Language, error) {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case English:
		return English, nil
	case Turkish:
		return Turkish, nil
	case Dutch:
		return Dutch, nil
	default:
		return "", fmt.Errorf("recognizer: unknown language %q", s)
	}
}

// String returns the lowercase language name.
func (l Language) String() string {
	return string(l)
}

// WordResult is a single recognized word with the engine's confidence in it.
type WordResult struct {
	Word       string
	Confidence float64
}

// Result is the final recognition outcome for one utterance.
type Result struct {
	// Text is the full transcript, words separated by single spaces.
	Text string

	// Words lists the individual recognized words in transcript order.
	Words []WordResult
}

// Handle is a per-speaker, per-language recognition stream. Handles are not
// safe for concurrent use; the caller serializes Accept/FinalResult/Close.
type Handle interface {
	// Accept feeds mono 16-bit PCM at the engine's configured sample rate.
	Accept(pcm []int16)

	// FinalResult flushes buffered audio and returns the utterance result.
	// The handle remains usable for the next utterance afterwards.
	FinalResult() (Result, error)

	// Close releases engine resources. The handle must not be used after.
	Close()
}

// Engine creates constrained recognition handles. Implementations must be
// safe for concurrent use; the handles they return need not be.
type Engine interface {
	// NewConstrained returns a handle restricted to the given vocabulary.
	// Audio that matches nothing in the vocabulary must not be forced onto
	// a vocabulary entry at high confidence.
	NewConstrained(lang Language, words, phrases []string) (Handle, error)
}
