package job

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/daikw/keyvox/internal/audio"
	"github.com/daikw/keyvox/internal/speech"
)

// State is the state of the single-text request
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Single generates speech for one text at a time and keeps the latest result
type Single struct {
	mu       sync.Mutex
	exec     Executor
	store    ArtifactStore
	controls *Controls

	state  State
	handle audio.Handle
	err    error
}

// NewSingle creates an idle single-text requester
func NewSingle(exec Executor, store ArtifactStore, controls *Controls) *Single {
	return &Single{
		exec:     exec,
		store:    store,
		controls: controls,
		state:    StateIdle,
	}
}

// Generate requests speech for text. Content that is empty once markup is
// removed, or that holds banned terms, fails without reaching the network.
func (s *Single) Generate(ctx context.Context, text string) (audio.Handle, error) {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return audio.Handle{}, ErrBusy
	}

	settings := s.controls.Settings()
	if !speech.HasSpeakableText(text, settings.IsMarkup) {
		s.failLocked(ErrEmptyContent)
		s.mu.Unlock()
		return audio.Handle{}, ErrEmptyContent
	}
	if terms := FindBannedTerms(text, s.controls.BannedTerms()); len(terms) > 0 {
		err := &BannedContentError{Terms: terms}
		s.failLocked(err)
		s.mu.Unlock()
		return audio.Handle{}, err
	}

	s.state = StateRunning
	s.err = nil
	s.mu.Unlock()

	log.Debug().Int("chars", CharCount(text)).Msg("Generating single request")

	result, err := s.exec.Execute(ctx, settings.Request(text, settings.IsMarkup))
	var h audio.Handle
	if err == nil {
		h, err = s.store.Put(result)
		if err != nil {
			err = fmt.Errorf("failed to store audio: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.failLocked(err)
		return audio.Handle{}, err
	}

	s.store.Release(s.handle)
	s.handle = h
	s.state = StateDone
	s.err = nil
	return h, nil
}

// failLocked records err and drops any previous result
func (s *Single) failLocked(err error) {
	s.store.Release(s.handle)
	s.handle = audio.Handle{}
	s.state = StateFailed
	s.err = err
}

// State returns the current state
func (s *Single) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Handle returns the latest result, or the zero handle
func (s *Single) Handle() audio.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Err returns the latest failure
func (s *Single) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// CharCount returns the number of characters in text
func (s *Single) CharCount(text string) int {
	return CharCount(text)
}

// BannedTerms returns the banned terms found in text
func (s *Single) BannedTerms(text string) []string {
	return FindBannedTerms(text, s.controls.BannedTerms())
}

// Reset releases the result and returns to idle
func (s *Single) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Release(s.handle)
	s.handle = audio.Handle{}
	s.state = StateIdle
	s.err = nil
}
