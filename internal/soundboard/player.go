package soundboard

import (
	"log/slog"

	"github.com/voxhound/voxhound/pkg/recognizer"
)

// ClipSink accepts playback PCM. Implemented by the voice transport
// connection; submissions after teardown must be silent no-ops.
type ClipSink interface {
	Play(pcm []int16)
}

// Player resolves fired triggers to clips and submits them for playback.
type Player struct {
	catalog *Catalog
	sink    ClipSink
}

// NewPlayer creates a player over the given catalog and sink.
func NewPlayer(catalog *Catalog, sink ClipSink) *Player {
	return &Player{catalog: catalog, sink: sink}
}

// Play looks up the clip for a trigger and submits it fire-and-forget.
// A trigger with no catalog entry is logged and dropped. Returns whether a
// clip was submitted.
func (p *Player) Play(text string, lang recognizer.Language) bool {
	clip, ok := p.catalog.Lookup(text, lang)
	if !ok {
		slog.Warn("soundboard: matched trigger has no catalog entry",
			"text", text,
			"language", lang,
		)
		return false
	}
	p.sink.Play(clip)
	return true
}
