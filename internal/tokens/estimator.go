// Package tokens estimates token counts for routing cost math. It prefers a
// tiktoken codec and falls back to a word-based heuristic when no codec is
// available, so estimation never fails.
package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Estimator counts tokens in prompt text. It is safe for concurrent use and
// deterministic for a given input, which keeps classification reproducible.
type Estimator struct {
	once  sync.Once
	codec tokenizer.Codec
}

// NewEstimator creates an estimator. Codec initialization is deferred to the
// first Estimate call.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Estimate returns the token count for text. A nil receiver or missing codec
// uses the heuristic fallback.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	if e != nil {
		e.once.Do(func() {
			// Cl100k covers the chat-model family; close enough for
			// relative cost estimation across backends.
			codec, err := tokenizer.Get(tokenizer.Cl100kBase)
			if err == nil {
				e.codec = codec
			}
		})
		if e.codec != nil {
			ids, _, err := e.codec.Encode(text)
			if err == nil {
				return len(ids)
			}
		}
	}
	return heuristicCount(text)
}

// heuristicCount approximates tokens as words * 4/3, the usual rule of thumb
// for English prose.
func heuristicCount(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return (words*4 + 2) / 3
}
