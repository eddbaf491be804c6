package soundboard

import (
	"reflect"
	"sync"
	"testing"

	"github.com/voxhound/voxhound/pkg/recognizer"
)

// sinkMock records submitted clips.
type sinkMock struct {
	mu    sync.Mutex
	clips [][]int16
}

func (s *sinkMock) Play(pcm []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clips = append(s.clips, pcm)
}

func TestPlayerPlaysCatalogClip(t *testing.T) {
	t.Parallel()

	sink := &sinkMock{}
	p := NewPlayer(testCatalog(), sink)

	if !p.Play("hello", recognizer.English) {
		t.Fatal("Play(hello) = false, want true")
	}
	if len(sink.clips) != 1 || !reflect.DeepEqual(sink.clips[0], []int16{1}) {
		t.Fatalf("sink clips = %v, want [[1]]", sink.clips)
	}
}

func TestPlayerUnknownTriggerDropped(t *testing.T) {
	t.Parallel()

	sink := &sinkMock{}
	p := NewPlayer(testCatalog(), sink)

	if p.Play("hello", recognizer.Dutch) {
		t.Fatal("Play with wrong language = true, want false")
	}
	if len(sink.clips) != 0 {
		t.Fatalf("sink clips = %v, want none", sink.clips)
	}
}
