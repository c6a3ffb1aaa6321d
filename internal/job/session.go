// Package job drives speech generation for one user session: a single text
// request and a batch of labelled items loaded from a task list.
package job

import (
	"context"
	"slices"
	"sync"

	"github.com/daikw/keyvox/internal/audio"
	"github.com/daikw/keyvox/internal/speech"
)

// Executor runs a speech request with key rotation
type Executor interface {
	Execute(ctx context.Context, req speech.Request) (speech.Audio, error)
	HasActive() bool
}

// ArtifactStore keeps generated audio until released
type ArtifactStore interface {
	Put(a speech.Audio) (audio.Handle, error)
	Bytes(h audio.Handle) ([]byte, error)
	Release(h audio.Handle)
}

// Settings are the voice controls applied to every request
type Settings struct {
	Voice    string  `json:"voice,omitempty"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Pitch    float64 `json:"pitch,omitempty"`
	IsMarkup bool    `json:"isMarkup,omitempty"`
}

// Request builds a speech request for content
func (s Settings) Request(content string, markup bool) speech.Request {
	return speech.Request{
		Content:  content,
		Voice:    s.Voice,
		Language: s.Language,
		Speed:    s.Speed,
		Pitch:    s.Pitch,
		IsMarkup: markup,
	}
}

// Controls holds the settings and banned terms shared by a session
type Controls struct {
	mu       sync.RWMutex
	settings Settings
	banned   []string
}

// NewControls creates controls with initial values
func NewControls(settings Settings, bannedTerms []string) *Controls {
	return &Controls{settings: settings, banned: slices.Clone(bannedTerms)}
}

// Settings returns the current settings
func (c *Controls) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Update changes the settings in place
func (c *Controls) Update(fn func(*Settings)) Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.settings)
	return c.settings
}

// BannedTerms returns the configured banned terms
func (c *Controls) BannedTerms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.banned)
}

// SetBannedTerms replaces the banned terms
func (c *Controls) SetBannedTerms(terms []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.banned = slices.Clone(terms)
}

// Session bundles the single and batch modes over one executor and artifact store
type Session struct {
	Controls *Controls
	Single   *Single
	Batch    *Batch
}

// NewSession creates a session
func NewSession(exec Executor, store ArtifactStore, controls *Controls, opts ...BatchOption) *Session {
	return &Session{
		Controls: controls,
		Single:   NewSingle(exec, store, controls),
		Batch:    NewBatch(exec, store, controls, opts...),
	}
}

// Close releases every artifact the session holds
func (s *Session) Close() {
	s.Single.Reset()
	s.Batch.Close()
}
