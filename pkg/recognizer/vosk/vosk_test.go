package vosk

import (
	"encoding/json"
	"testing"
)

func TestGrammarJSON(t *testing.T) {
	t.Parallel()

	got, err := grammarJSON([]string{"hello", "bye"}, []string{"good morning"})
	if err != nil {
		t.Fatalf("grammarJSON: %v", err)
	}

	var entries []string
	if err := json.Unmarshal([]byte(got), &entries); err != nil {
		t.Fatalf("grammar is not a JSON array: %v", err)
	}
	want := []string{"hello", "bye", "good morning", "[unk]"}
	if len(entries) != len(want) {
		t.Fatalf("grammar entries = %v, want %v", entries, want)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Fatalf("grammar entries = %v, want %v", entries, want)
		}
	}
}

func TestGrammarJSONEmptyVocabularyStillHasUnknown(t *testing.T) {
	t.Parallel()

	got, err := grammarJSON(nil, nil)
	if err != nil {
		t.Fatalf("grammarJSON: %v", err)
	}
	if got != `["[unk]"]` {
		t.Fatalf("grammarJSON(nil, nil) = %s, want [\"[unk]\"]", got)
	}
}

func TestVoskResultParsing(t *testing.T) {
	t.Parallel()

	raw := `{"result":[{"conf":1.0,"end":1.1,"start":0.5,"word":"hello"},{"conf":0.42,"end":1.8,"start":1.2,"word":"[unk]"}],"text":"hello [unk]"}`

	var parsed voskResult
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.Text != "hello [unk]" {
		t.Fatalf("text = %q, want %q", parsed.Text, "hello [unk]")
	}
	if len(parsed.Result) != 2 {
		t.Fatalf("words = %d, want 2", len(parsed.Result))
	}
	if parsed.Result[0].Word != "hello" || parsed.Result[0].Conf != 1.0 {
		t.Fatalf("first word = %+v, want hello@1.0", parsed.Result[0])
	}
}
