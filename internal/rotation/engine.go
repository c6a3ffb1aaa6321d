package rotation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/daikw/keyvox/internal/credential"
	"github.com/daikw/keyvox/internal/speech"
)

// CredentialPool is the part of credential.Pool the engine needs
type CredentialPool interface {
	Active() []credential.Credential
	MarkUsed(ctx context.Context, secret string) (credential.Credential, error)
	MarkFailed(ctx context.Context, secret string, status credential.Status, message string) (credential.Credential, error)
}

// Attempt describes one call to the synthesizer with one key
type Attempt struct {
	Number   int
	Key      string // masked
	Kind     FailureKind
	Err      error
	Duration time.Duration
}

// Succeeded reports whether the attempt produced audio
func (a Attempt) Succeeded() bool {
	return a.Err == nil
}

// Observer receives every attempt as it completes
type Observer func(Attempt)

// Engine executes speech requests with key rotation and failover.
// It is safe for concurrent use.
type Engine struct {
	pool     CredentialPool
	synth    speech.Synthesizer
	cursor   Cursor
	observer Observer
}

// Option configures an Engine
type Option func(*Engine)

// WithCursor replaces the shared rotation cursor
func WithCursor(c Cursor) Option {
	return func(e *Engine) {
		e.cursor = c
	}
}

// WithObserver registers a callback for every attempt
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// NewEngine creates an engine over pool and synth
func NewEngine(pool CredentialPool, synth speech.Synthesizer, opts ...Option) *Engine {
	e := &Engine{
		pool:   pool,
		synth:  synth,
		cursor: NewSharedCursor(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Backend returns the name of the wrapped synthesizer
func (e *Engine) Backend() string {
	return e.synth.Name()
}

// HasActive reports whether at least one key is currently active
func (e *Engine) HasActive() bool {
	return len(e.pool.Active()) > 0
}

// Execute runs req against the active keys until one succeeds.
// A key that fails is never tried again within the same call.
func (e *Engine) Execute(ctx context.Context, req speech.Request) (speech.Audio, error) {
	tried := make(map[string]struct{})
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return speech.Audio{}, err
		}

		eligible := e.eligible(tried)
		if len(eligible) == 0 {
			if lastErr != nil {
				return speech.Audio{}, fmt.Errorf("%w: %w", ErrNoActiveCredentials, lastErr)
			}
			return speech.Audio{}, ErrNoActiveCredentials
		}

		cred := eligible[e.cursor.Next(len(eligible))]
		masked := credential.Mask(cred.Secret)

		start := time.Now()
		audio, err := e.synth.Synthesize(ctx, cred.Secret, req)
		elapsed := time.Since(start)

		if err == nil {
			if _, markErr := e.pool.MarkUsed(ctx, cred.Secret); markErr != nil {
				log.Warn().Err(markErr).Str("key", masked).Msg("Failed to record key usage")
			}
			log.Debug().
				Int("attempt", attempt).
				Str("key", masked).
				Str("backend", e.synth.Name()).
				Dur("duration", elapsed).
				Msg("Speech request succeeded")
			e.notify(Attempt{Number: attempt, Key: masked, Duration: elapsed})
			return audio, nil
		}

		kind := Classify(err)
		e.notify(Attempt{Number: attempt, Key: masked, Kind: kind, Err: err, Duration: elapsed})

		if !kind.blamesKey() {
			return speech.Audio{}, err
		}

		tried[cred.Secret] = struct{}{}
		lastErr = &AttemptError{Kind: kind, Key: masked, Err: err}

		message := err.Error()
		if message == "" {
			message = kind.defaultMessage()
		}
		if _, markErr := e.pool.MarkFailed(ctx, cred.Secret, kind.Status(), message); markErr != nil {
			log.Warn().Err(markErr).Str("key", masked).Msg("Failed to record key failure")
		}

		log.Warn().
			Int("attempt", attempt).
			Str("key", masked).
			Str("kind", kind.String()).
			Err(err).
			Msg("Speech request failed, trying next key")
	}
}

// Voices lists the backend's voices using the next active key.
// Listing is not billed, so a failure does not change the key's status.
func (e *Engine) Voices(ctx context.Context, language string) ([]speech.Voice, error) {
	active := e.pool.Active()
	if len(active) == 0 {
		return nil, ErrNoActiveCredentials
	}
	cred := active[e.cursor.Next(len(active))]
	voices, err := e.synth.Voices(ctx, cred.Secret, language)
	if err != nil {
		return nil, fmt.Errorf("failed to list voices with key %s: %w", credential.Mask(cred.Secret), err)
	}
	return voices, nil
}

// eligible returns the active keys not yet tried, in pool order
func (e *Engine) eligible(tried map[string]struct{}) []credential.Credential {
	active := e.pool.Active()
	out := make([]credential.Credential, 0, len(active))
	for _, c := range active {
		if _, ok := tried[c.Secret]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (e *Engine) notify(a Attempt) {
	if e.observer != nil {
		e.observer(a)
	}
}
