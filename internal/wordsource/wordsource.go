// Package wordsource implements the WordSource component (spec §4.x):
// on demand, it produces a batch of N distinct challenge words, each with
// its set of accepted translations, for the MatchOrchestrator to run a
// duel over. spec §1 specifies the dictionary and translation oracle only
// by interface ("out of scope"); this package is the in-repo reference
// implementation so the server is runnable end-to-end, built around a
// small embedded Italian→English dictionary in the spirit of spec §8's
// worked examples ("casa" → house/home, "cane" → dog).
package wordsource

import (
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

//go:embed dictionary.json
var dictionaryFS embed.FS

// Challenge is one source word plus the set of translations that count as
// correct (spec §3's "shared word list with translation sets").
type Challenge struct {
	Word     string
	Accepted []string // lower-cased accepted translations
}

// Accepts reports whether answer is a case-insensitive match for one of
// c's accepted translations.
func (c Challenge) Accepts(answer string) bool {
	answer = strings.ToLower(strings.TrimSpace(answer))
	for _, a := range c.Accepted {
		if a == answer {
			return true
		}
	}
	return false
}

// Source samples distinct challenge words from a fixed dictionary.
type Source struct {
	mu    sync.Mutex
	rng   *rand.Rand
	words []Challenge
}

type dictEntry struct {
	Word     string   `json:"word"`
	Accepted []string `json:"accepted"`
}

// New loads the embedded dictionary. seed controls the sampling order;
// pass a fixed seed in tests for reproducible duels.
func New(seed int64) (*Source, error) {
	data, err := dictionaryFS.ReadFile("dictionary.json")
	if err != nil {
		return nil, fmt.Errorf("wordsource: read embedded dictionary: %w", err)
	}
	var entries []dictEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("wordsource: parse embedded dictionary: %w", err)
	}
	words := make([]Challenge, 0, len(entries))
	for _, e := range entries {
		accepted := make([]string, 0, len(e.Accepted))
		for _, a := range e.Accepted {
			accepted = append(accepted, strings.ToLower(a))
		}
		words = append(words, Challenge{Word: e.Word, Accepted: accepted})
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("wordsource: embedded dictionary is empty")
	}
	return &Source{rng: rand.New(rand.NewSource(seed)), words: words}, nil
}

// Next returns n distinct challenge words sampled from the dictionary.
func (s *Source) Next(n int) ([]Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > len(s.words) {
		return nil, fmt.Errorf("wordsource: requested %d distinct words but dictionary only has %d", n, len(s.words))
	}
	idx := s.rng.Perm(len(s.words))[:n]
	out := make([]Challenge, n)
	for i, w := range idx {
		out[i] = s.words[w]
	}
	return out, nil
}
