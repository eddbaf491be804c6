// Package soundboard contains the speech-triggered playback core: the
// per-join trigger catalog, the speaker registry that fans live audio out to
// constrained recognizers, the match policy, and the playback gateway.
package soundboard

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/voxhound/voxhound/internal/store"
	"github.com/voxhound/voxhound/pkg/audio"
	"github.com/voxhound/voxhound/pkg/recognizer"
)

// Kind classifies a trigger as a single word or a multi-word phrase. Words
// are matched against individual recognizer word results with a confidence
// gate; phrases are matched as substrings of the full transcript.
type Kind int

const (
	Word Kind = iota
	Phrase
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case Word:
		return "WORD"
	case Phrase:
		return "PHRASE"
	default:
		return "UNKNOWN"
	}
}

// ClassifyKind returns [Phrase] when text has more than one whitespace
// separated token, [Word] otherwise.
func ClassifyKind(text string) Kind {
	if len(strings.Fields(text)) > 1 {
		return Phrase
	}
	return Word
}

// Entry is one trigger in the catalog: the text to listen for and the clip
// to play when it is heard.
type Entry struct {
	Text     string
	Kind     Kind
	Language recognizer.Language

	// Clip is preloaded 48 kHz stereo PCM ready for the voice transport.
	Clip []int16
}

// Catalog is the immutable trigger set for one voice session. It is built
// once per join from the store rows current at that moment; catalog edits
// take effect on the next join.
type Catalog struct {
	entries []Entry
	byKey   map[catalogKey]int
}

type catalogKey struct {
	text string
	lang recognizer.Language
}

// NewCatalog builds a catalog from preloaded entries, keeping their order.
// Later duplicates of the same (text, language) pair are dropped.
func NewCatalog(entries []Entry) *Catalog {
	c := &Catalog{byKey: make(map[catalogKey]int, len(entries))}
	for _, e := range entries {
		key := catalogKey{text: e.Text, lang: e.Language}
		if _, exists := c.byKey[key]; exists {
			continue
		}
		c.byKey[key] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c
}

// LoadCatalog builds a catalog from store rows, decoding each row's WAV clip
// from clipDir and converting it to playback format. Rows whose clips cannot
// be loaded are logged and skipped rather than failing the whole catalog.
func LoadCatalog(sounds []store.Sound, clipDir string) *Catalog {
	entries := make([]Entry, 0, len(sounds))
	for _, s := range sounds {
		clip, err := loadClip(filepath.Join(clipDir, s.FileName))
		if err != nil {
			slog.Warn("soundboard: skipping sound with unloadable clip",
				"prompt", s.Prompt,
				"language", s.Language,
				"file", s.FileName,
				"error", err,
			)
			continue
		}
		entries = append(entries, Entry{
			Text:     s.Prompt,
			Kind:     ClassifyKind(s.Prompt),
			Language: s.Language,
			Clip:     clip,
		})
	}
	return NewCatalog(entries)
}

// loadClip reads a WAV file and returns its PCM converted to 48 kHz stereo.
func loadClip(path string) ([]int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pcm, rate, channels, err := audio.DecodeWAV(f)
	if err != nil {
		return nil, err
	}
	return audio.ToPlaybackFormat(pcm, rate, channels), nil
}

// Vocabulary returns the word and phrase trigger texts for one language, in
// catalog order. Both slices are nil when the language has no triggers.
func (c *Catalog) Vocabulary(lang recognizer.Language) (words, phrases []string) {
	for _, e := range c.entries {
		if e.Language != lang {
			continue
		}
		switch e.Kind {
		case Word:
			words = append(words, e.Text)
		case Phrase:
			phrases = append(phrases, e.Text)
		}
	}
	return words, phrases
}

// Languages returns the languages that have at least one trigger, in the
// stable [recognizer.Languages] order.
func (c *Catalog) Languages() []recognizer.Language {
	var langs []recognizer.Language
	for _, lang := range recognizer.Languages() {
		words, phrases := c.Vocabulary(lang)
		if len(words)+len(phrases) > 0 {
			langs = append(langs, lang)
		}
	}
	return langs
}

// Lookup returns the clip for an exact (text, language) trigger.
func (c *Catalog) Lookup(text string, lang recognizer.Language) ([]int16, bool) {
	idx, ok := c.byKey[catalogKey{text: text, lang: lang}]
	if !ok {
		return nil, false
	}
	return c.entries[idx].Clip, true
}

// Len returns the number of triggers in the catalog.
func (c *Catalog) Len() int {
	return len(c.entries)
}
