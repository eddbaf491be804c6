package soundboard

import (
	"strings"

	"github.com/voxhound/voxhound/pkg/recognizer"
)

// wordConfidenceThreshold gates single-word triggers. A word result must
// exceed this strictly; a confidence of exactly 0.999 does not fire.
const wordConfidenceThreshold = 0.999

// Match is a fired trigger: the catalog text that matched and its language.
type Match struct {
	Text     string
	Language recognizer.Language
}

// matchResult applies the trigger policy to one utterance result:
//
//  1. the first word result whose confidence strictly exceeds the threshold
//     and exactly equals a configured word trigger wins;
//  2. otherwise the first configured phrase, in catalog order, that appears
//     as a substring of the transcript wins;
//  3. otherwise nothing fires.
//
// At most one match per utterance per vocabulary.
func matchResult(res recognizer.Result, lang recognizer.Language, words, phrases []string) (Match, bool) {
	for _, wr := range res.Words {
		if wr.Confidence <= wordConfidenceThreshold {
			continue
		}
		for _, w := range words {
			if wr.Word == w {
				return Match{Text: w, Language: lang}, true
			}
		}
	}

	for _, p := range phrases {
		if strings.Contains(res.Text, p) {
			return Match{Text: p, Language: lang}, true
		}
	}

	return Match{}, false
}
