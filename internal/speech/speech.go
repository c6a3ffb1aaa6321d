// Package speech defines the remote speech-generation call and its backends.
// Every backend takes the API key per call so that callers can rotate keys.
package speech

import (
	"context"
	"errors"
	"fmt"
)

// KeyForgetter is implemented by backends that hold per-key state, such as
// cached clients, which should be dropped when the key is removed.
type KeyForgetter interface {
	Forget(secret string)
}

// ErrInvalidRequest marks failures detected before anything reaches the
// remote service. They say nothing about the API key that was used.
var ErrInvalidRequest = errors.New("invalid speech request")

// Synthesizer generates audio for one request using the given API key
type Synthesizer interface {
	// Name returns the backend name
	Name() string

	// Synthesize generates audio for req, authenticating with secret
	Synthesize(ctx context.Context, secret string, req Request) (Audio, error)

	// Voices returns the voices the backend offers for the given language ("" for all)
	Voices(ctx context.Context, secret, language string) ([]Voice, error)
}

// Request is a single synthesis call
type Request struct {
	Content  string  `json:"content"`
	Voice    string  `json:"voice,omitempty"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"` // Speed multiplier (0.25-4.0)
	Pitch    float64 `json:"pitch,omitempty"` // Pitch offset in semitones (-20.0-20.0)
	IsMarkup bool    `json:"isMarkup,omitempty"`
}

// Format is the encoding of returned audio
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
	FormatOGG Format = "ogg"
	FormatPCM Format = "pcm" // Raw signed 16-bit little-endian mono
)

// Audio is the payload returned by a backend
type Audio struct {
	Data       []byte
	Format     Format
	SampleRate int // Only meaningful for FormatPCM
}

// Voice represents a voice option
type Voice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Language    string `json:"language"`
	Gender      string `json:"gender,omitempty"`
	Description string `json:"description,omitempty"`
}

// RemoteError is a non-success response from an HTTP backend
type RemoteError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s API error: status %d, body: %s", e.Backend, e.StatusCode, e.Body)
}

// clampSpeed limits speed to the 0.25-4.0 range most backends accept
func clampSpeed(speed float64) float64 {
	if speed <= 0 {
		return 1.0
	}
	if speed < 0.25 {
		return 0.25
	}
	if speed > 4.0 {
		return 4.0
	}
	return speed
}

// clampPitch limits a semitone offset to -20.0-20.0
func clampPitch(pitch float64) float64 {
	if pitch < -20 {
		return -20
	}
	if pitch > 20 {
		return 20
	}
	return pitch
}
