package soundboard

import (
	"log/slog"
	"sync"

	"github.com/voxhound/voxhound/pkg/audio"
	"github.com/voxhound/voxhound/pkg/recognizer"
)

// Registry binds speaking participants (by SSRC) to per-language recognizer
// slots and routes their live audio through them.
//
// Locking is two-level: the registry mutex guards only the SSRC and user
// maps, never recognizer work. Each speaker carries its own mutex that
// serializes bind/unbind against feed/finalize for that one stream, so audio
// from different speakers never contends.
type Registry struct {
	engine  recognizer.Engine
	catalog *Catalog

	mu     sync.RWMutex
	bySSRC map[uint32]*speaker
	byUser map[string]uint32
}

// speaker is one bound audio stream and its recognizer slots.
type speaker struct {
	mu     sync.Mutex
	userID string
	slots  []*slot

	// active is set by Feed and cleared by Finalize; a finalize with no
	// audio since the last one is a no-op.
	active bool

	// closed stops late Feed/Finalize calls racing an unbind.
	closed bool
}

// slot is one language's constrained recognizer for one speaker.
type slot struct {
	lang    recognizer.Language
	words   []string
	phrases []string
	handle  recognizer.Handle
}

// NewRegistry creates a registry over the given engine and catalog.
func NewRegistry(engine recognizer.Engine, catalog *Catalog) *Registry {
	return &Registry{
		engine:  engine,
		catalog: catalog,
		bySSRC:  make(map[uint32]*speaker),
		byUser:  make(map[string]uint32),
	}
}

// AddSpeaker binds an SSRC to a user and creates one recognizer slot per
// language that has triggers in the catalog. Rebinding a user to a new SSRC
// evicts the previous binding first. Slot construction failures for a single
// language are logged and that language skipped.
func (r *Registry) AddSpeaker(ssrc uint32, userID string) {
	// Build slots before touching the maps; recognizer construction can be
	// expensive and must not run under the registry lock.
	var slots []*slot
	for _, lang := range r.catalog.Languages() {
		words, phrases := r.catalog.Vocabulary(lang)
		handle, err := r.engine.NewConstrained(lang, words, phrases)
		if err != nil {
			slog.Warn("soundboard: recognizer slot unavailable",
				"language", lang,
				"userID", userID,
				"error", err,
			)
			continue
		}
		slots = append(slots, &slot{lang: lang, words: words, phrases: phrases, handle: handle})
	}

	sp := &speaker{userID: userID, slots: slots}

	r.mu.Lock()
	var evicted []*speaker
	if oldSSRC, ok := r.byUser[userID]; ok {
		if old := r.bySSRC[oldSSRC]; old != nil {
			evicted = append(evicted, old)
		}
		delete(r.bySSRC, oldSSRC)
	}
	if old, ok := r.bySSRC[ssrc]; ok && old.userID != userID {
		// Another user previously held this SSRC.
		evicted = append(evicted, old)
		delete(r.byUser, old.userID)
	}
	r.bySSRC[ssrc] = sp
	r.byUser[userID] = ssrc
	r.mu.Unlock()

	for _, old := range evicted {
		old.close()
	}
}

// RemoveSpeaker drops a user's binding and closes its recognizer slots.
// Unknown users are a no-op.
func (r *Registry) RemoveSpeaker(userID string) {
	r.mu.Lock()
	ssrc, ok := r.byUser[userID]
	var sp *speaker
	if ok {
		sp = r.bySSRC[ssrc]
		delete(r.bySSRC, ssrc)
		delete(r.byUser, userID)
	}
	r.mu.Unlock()

	if sp != nil {
		sp.close()
	}
}

// Feed downmixes one stereo frame to mono and feeds it to every slot of the
// speaker bound to ssrc. Unbound SSRCs are ignored.
func (r *Registry) Feed(ssrc uint32, pcm []int16) {
	sp := r.lookup(ssrc)
	if sp == nil {
		return
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.closed || len(sp.slots) == 0 {
		return
	}

	mono := audio.DownmixStereo(pcm)
	for _, s := range sp.slots {
		s.handle.Accept(mono)
	}
	sp.active = true
}

// Finalize flushes every slot of the speaker bound to ssrc and applies the
// trigger policy per slot. It returns at most one match per language and
// never initiates playback itself. A finalize without audio since the last
// one returns nil.
func (r *Registry) Finalize(ssrc uint32) []Match {
	sp := r.lookup(ssrc)
	if sp == nil {
		return nil
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.closed || !sp.active {
		return nil
	}
	sp.active = false

	var matches []Match
	for _, s := range sp.slots {
		res, err := s.handle.FinalResult()
		if err != nil {
			slog.Warn("soundboard: finalize failed",
				"language", s.lang,
				"userID", sp.userID,
				"error", err,
			)
			continue
		}
		if m, ok := matchResult(res, s.lang, s.words, s.phrases); ok {
			matches = append(matches, m)
		}
	}
	return matches
}

// ResetAll drops every binding and closes all recognizer slots. Calling it
// on an empty registry is a no-op.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	speakers := make([]*speaker, 0, len(r.bySSRC))
	for _, sp := range r.bySSRC {
		speakers = append(speakers, sp)
	}
	r.bySSRC = make(map[uint32]*speaker)
	r.byUser = make(map[string]uint32)
	r.mu.Unlock()

	for _, sp := range speakers {
		sp.close()
	}
}

// Bound returns the number of currently bound speakers.
func (r *Registry) Bound() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySSRC)
}

func (r *Registry) lookup(ssrc uint32) *speaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bySSRC[ssrc]
}

// close releases the speaker's recognizer handles. Idempotent.
func (sp *speaker) close() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.closed {
		return
	}
	sp.closed = true
	for _, s := range sp.slots {
		s.handle.Close()
	}
	sp.slots = nil
}
