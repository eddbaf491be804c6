// Package mock provides in-memory mock implementations of [recognizer.Engine]
// and [recognizer.Handle] for use in unit tests.
//
// All mocks are safe for concurrent use, record method calls, and expose
// exported fields for configuring return values.
//
// Example:
//
//	eng := &mock.Engine{
//	    Results: map[recognizer.Language]recognizer.Result{
//	        recognizer.English: {Text: "hello there"},
//	    },
//	}
//	h, err := eng.NewConstrained(recognizer.English, []string{"hello"}, nil)
package mock

import (
	"sync"

	"github.com/voxhound/voxhound/pkg/recognizer"
)

// Compile-time interface assertions.
var (
	_ recognizer.Engine = (*Engine)(nil)
	_ recognizer.Handle = (*Handle)(nil)
)

// NewConstrainedCall records the arguments of a single [Engine.NewConstrained] invocation.
type NewConstrainedCall struct {
	// Language is the requested model language.
	Language recognizer.Language
	// Words is the word vocabulary the handle was constrained to.
	Words []string
	// Phrases is the phrase vocabulary the handle was constrained to.
	Phrases []string
}

// Engine is a mock implementation of [recognizer.Engine]. Every handle it
// returns is recorded in Handles so tests can inspect the audio fed to it.
type Engine struct {
	mu sync.Mutex

	// Results configures the result each created handle returns from
	// FinalResult, keyed by language. Missing languages yield a zero Result.
	Results map[recognizer.Language]recognizer.Result

	// NewConstrainedError is returned by [Engine.NewConstrained]. When set,
	// no handle is created.
	NewConstrainedError error

	// FinalResultError is copied onto every created handle.
	FinalResultError error

	// NewConstrainedCalls records all NewConstrained invocations.
	NewConstrainedCalls []NewConstrainedCall

	// Handles records every handle created, in creation order.
	Handles []*Handle
}

// NewConstrained implements [recognizer.Engine].
func (e *Engine) NewConstrained(lang recognizer.Language, words, phrases []string) (recognizer.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewConstrainedCalls = append(e.NewConstrainedCalls, NewConstrainedCall{
		Language: lang,
		Words:    append([]string(nil), words...),
		Phrases:  append([]string(nil), phrases...),
	})
	if e.NewConstrainedError != nil {
		return nil, e.NewConstrainedError
	}
	h := &Handle{
		Language:    lang,
		Result:      e.Results[lang],
		ResultError: e.FinalResultError,
	}
	e.Handles = append(e.Handles, h)
	return h, nil
}

// Handle is a mock implementation of [recognizer.Handle].
type Handle struct {
	mu sync.Mutex

	// Language is the language this handle was created for.
	Language recognizer.Language

	// Result is returned by [Handle.FinalResult].
	Result recognizer.Result

	// ResultError is returned by [Handle.FinalResult].
	ResultError error

	// AcceptedPCM records every Accept invocation's samples.
	AcceptedPCM [][]int16

	// CallCountFinalResult records how many times FinalResult was called.
	CallCountFinalResult int

	// Closed reports whether Close was called.
	Closed bool
}

// Accept implements [recognizer.Handle]. Records the samples.
func (h *Handle) Accept(pcm []int16) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.AcceptedPCM = append(h.AcceptedPCM, append([]int16(nil), pcm...))
}

// FinalResult implements [recognizer.Handle]. Returns Result and ResultError.
func (h *Handle) FinalResult() (recognizer.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CallCountFinalResult++
	return h.Result, h.ResultError
}

// Close implements [recognizer.Handle]. Marks the handle closed.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Closed = true
}
