package store

import (
	"context"
	"errors"
	"testing"

	"github.com/voxhound/voxhound/pkg/recognizer"
)

func TestMemStoreCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := NewMemStore()

	sounds, err := ms.ListSounds(ctx, "g1")
	if err != nil {
		t.Fatalf("ListSounds empty: %v", err)
	}
	if len(sounds) != 0 {
		t.Fatalf("ListSounds empty = %v, want none", sounds)
	}

	a := Sound{GuildID: "g1", Prompt: "hello", Language: recognizer.English, FileName: "a.wav"}
	b := Sound{GuildID: "g1", Prompt: "good morning", Language: recognizer.Dutch, FileName: "b.wav"}
	if err := ms.AddSound(ctx, a); err != nil {
		t.Fatalf("AddSound a: %v", err)
	}
	if err := ms.AddSound(ctx, b); err != nil {
		t.Fatalf("AddSound b: %v", err)
	}

	// Duplicate prompt in the same guild is rejected.
	if err := ms.AddSound(ctx, a); err == nil {
		t.Fatal("AddSound accepted duplicate prompt")
	}

	// Same prompt in another guild is fine.
	if err := ms.AddSound(ctx, Sound{GuildID: "g2", Prompt: "hello", Language: recognizer.English, FileName: "c.wav"}); err != nil {
		t.Fatalf("AddSound other guild: %v", err)
	}

	sounds, err = ms.ListSounds(ctx, "g1")
	if err != nil {
		t.Fatalf("ListSounds: %v", err)
	}
	if len(sounds) != 2 || sounds[0].Prompt != "hello" || sounds[1].Prompt != "good morning" {
		t.Fatalf("ListSounds = %v, want [hello, good morning]", sounds)
	}

	removed, err := ms.RemoveSound(ctx, "g1", "hello")
	if err != nil {
		t.Fatalf("RemoveSound: %v", err)
	}
	if removed.FileName != "a.wav" {
		t.Fatalf("RemoveSound file = %q, want a.wav", removed.FileName)
	}

	if _, err := ms.RemoveSound(ctx, "g1", "hello"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RemoveSound missing = %v, want ErrNotFound", err)
	}

	sounds, _ = ms.ListSounds(ctx, "g1")
	if len(sounds) != 1 || sounds[0].Prompt != "good morning" {
		t.Fatalf("ListSounds after remove = %v, want [good morning]", sounds)
	}
}
