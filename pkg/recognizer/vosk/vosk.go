// Package vosk implements [recognizer.Engine] on top of the Vosk speech
// recognition toolkit via the alphacep/vosk-api cgo bindings.
//
// One [vosk.VoskModel] is loaded per language at startup; each handle is a
// grammar-constrained [vosk.VoskRecognizer] that only ever emits words from
// its configured vocabulary or the unknown token.
package vosk

import (
	"encoding/json"
	"fmt"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"

	"github.com/voxhound/voxhound/pkg/audio"
	"github.com/voxhound/voxhound/pkg/recognizer"
)

// Compile-time interface assertion.
var _ recognizer.Engine = (*Engine)(nil)

// Engine holds one loaded Vosk model per language. Safe for concurrent use;
// Vosk models are immutable once loaded and shared across recognizers.
type Engine struct {
	mu     sync.RWMutex
	models map[recognizer.Language]*vosk.VoskModel
}

// NewEngine loads a Vosk model from disk for every entry in modelPaths.
// On any load failure the already-loaded models are freed and the error
// returned. At least one language must be given.
func NewEngine(modelPaths map[recognizer.Language]string) (*Engine, error) {
	if len(modelPaths) == 0 {
		return nil, fmt.Errorf("vosk: no model paths configured")
	}
	models := make(map[recognizer.Language]*vosk.VoskModel, len(modelPaths))
	for lang, path := range modelPaths {
		model, err := vosk.NewModel(path)
		if err != nil {
			for _, m := range models {
				m.Free()
			}
			return nil, fmt.Errorf("vosk: load %s model from %q: %w", lang, path, err)
		}
		models[lang] = model
	}
	return &Engine{models: models}, nil
}

// Languages returns the languages this engine has models for.
func (e *Engine) Languages() []recognizer.Language {
	e.mu.RLock()
	defer e.mu.RUnlock()
	langs := make([]recognizer.Language, 0, len(e.models))
	for _, l := range recognizer.Languages() {
		if _, ok := e.models[l]; ok {
			langs = append(langs, l)
		}
	}
	return langs
}

// NewConstrained creates a grammar-constrained recognizer for lang. The
// grammar is the configured words and phrases plus "[unk]", which gives the
// decoder an out for audio matching nothing in the vocabulary instead of
// forcing a high-confidence vocabulary hit.
func (e *Engine) NewConstrained(lang recognizer.Language, words, phrases []string) (recognizer.Handle, error) {
	e.mu.RLock()
	model, ok := e.models[lang]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("vosk: no model loaded for language %s", lang)
	}

	grammar, err := grammarJSON(words, phrases)
	if err != nil {
		return nil, err
	}

	rec, err := vosk.NewRecognizerGrm(model, float64(audio.SampleRate), grammar)
	if err != nil {
		return nil, fmt.Errorf("vosk: create recognizer for %s: %w", lang, err)
	}
	rec.SetWords(1)

	return &handle{rec: rec}, nil
}

// Close frees all loaded models. The engine must not be used after Close.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for lang, model := range e.models {
		model.Free()
		delete(e.models, lang)
	}
}

// grammarJSON renders the Vosk grammar: a JSON array of every vocabulary
// entry plus the unknown token.
func grammarJSON(words, phrases []string) (string, error) {
	entries := make([]string, 0, len(words)+len(phrases)+1)
	entries = append(entries, words...)
	entries = append(entries, phrases...)
	entries = append(entries, "[unk]")
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("vosk: marshal grammar: %w", err)
	}
	return string(b), nil
}

// handle wraps a single VoskRecognizer. Not safe for concurrent use.
type handle struct {
	rec *vosk.VoskRecognizer
}

func (h *handle) Accept(pcm []int16) {
	if h.rec == nil || len(pcm) == 0 {
		return
	}
	h.rec.AcceptWaveform(audio.Int16sToBytes(pcm))
}

// voskResult mirrors the JSON shape of VoskRecognizer.FinalResult with
// SetWords enabled.
type voskResult struct {
	Text   string `json:"text"`
	Result []struct {
		Word string  `json:"word"`
		Conf float64 `json:"conf"`
	} `json:"result"`
}

func (h *handle) FinalResult() (recognizer.Result, error) {
	if h.rec == nil {
		return recognizer.Result{}, fmt.Errorf("vosk: recognizer closed")
	}
	raw := h.rec.FinalResult()

	var parsed voskResult
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return recognizer.Result{}, fmt.Errorf("vosk: parse final result: %w", err)
	}

	res := recognizer.Result{Text: parsed.Text}
	for _, w := range parsed.Result {
		res.Words = append(res.Words, recognizer.WordResult{Word: w.Word, Confidence: w.Conf})
	}
	return res, nil
}

func (h *handle) Close() {
	if h.rec != nil {
		h.rec.Free()
		h.rec = nil
	}
}
