// Package store persists the per-guild sound catalog: which trigger prompt
// plays which clip file in which language.
package store

import (
	"context"
	"errors"

	"github.com/voxhound/voxhound/pkg/recognizer"
)

// ErrNotFound is returned when a guild has no sound with the given prompt.
var ErrNotFound = errors.New("store: sound not found")

// Sound is one row of the sound catalog.
type Sound struct {
	// GuildID is the Discord guild the sound belongs to.
	GuildID string

	// Prompt is the spoken trigger text, lowercase and trimmed.
	Prompt string

	// Language selects the recognition model that listens for the prompt.
	Language recognizer.Language

	// FileName is the clip file name relative to the clip directory.
	FileName string
}

// Store is the persistence contract for the sound catalog.
// Implementations must be safe for concurrent use.
type Store interface {
	// ListSounds returns all sounds for a guild in insertion order.
	ListSounds(ctx context.Context, guildID string) ([]Sound, error)

	// AddSound inserts a sound. A duplicate (guild, prompt) pair is an error.
	AddSound(ctx context.Context, s Sound) error

	// RemoveSound deletes the sound with the given prompt and returns the
	// removed row. Returns [ErrNotFound] when no such prompt exists.
	RemoveSound(ctx context.Context, guildID, prompt string) (Sound, error)
}
