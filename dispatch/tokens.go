package dispatch

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenEstimator counts tokens for backends that do not report usage
// themselves (notably the CLI hop). The encoding is initialized lazily
// because tiktoken may download data on first use; on any init error the
// estimator degrades to a bytes/4 heuristic.
type tokenEstimator struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
}

func newTokenEstimator() *tokenEstimator {
	return &tokenEstimator{encoding: "cl100k_base"}
}

func (t *tokenEstimator) init() {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err == nil {
			t.enc = enc
		}
	})
}

// Count returns the token count of text, or len(text)/4 when the encoding
// is unavailable.
func (t *tokenEstimator) Count(text string) int {
	t.init()
	if t.enc == nil {
		return len(text) / 4
	}
	return len(t.enc.Encode(text, nil, nil))
}
