package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	OpenAITTSEndpoint = "/audio/speech"
)

// OpenAI implements Synthesizer for the OpenAI Audio API
type OpenAI struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenAI creates an OpenAI backend. Empty arguments select the defaults.
func NewOpenAI(baseURL, model string) *OpenAI {
	if baseURL == "" {
		baseURL = OpenAIBaseURL
	}
	if model == "" {
		model = "tts-1"
	}
	return &OpenAI{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Name returns the backend name
func (o *OpenAI) Name() string {
	return "openai"
}

// Synthesize generates WAV audio. Markup is reduced to plain text.
func (o *OpenAI) Synthesize(ctx context.Context, secret string, req Request) (Audio, error) {
	text := plainText(req)
	if text == "" {
		return Audio{}, fmt.Errorf("%w: text cannot be empty", ErrInvalidRequest)
	}

	voice := req.Voice
	if voice == "" {
		voice = "alloy"
	}

	requestBody := map[string]interface{}{
		"model":           o.model,
		"input":           text,
		"voice":           voice,
		"response_format": "wav",
		"speed":           clampSpeed(req.Speed),
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return Audio{}, fmt.Errorf("%w: failed to marshal request: %w", ErrInvalidRequest, err)
	}

	endpoint := o.baseURL + OpenAITTSEndpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return Audio{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+secret)

	log.Debug().
		Str("endpoint", endpoint).
		Str("voice", voice).
		Str("model", o.model).
		Msg("Making OpenAI TTS request")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return Audio{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Audio{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Audio{}, &RemoteError{Backend: "OpenAI", StatusCode: resp.StatusCode, Body: string(body)}
	}

	return Audio{Data: body, Format: FormatWAV}, nil
}

// Voices returns the fixed OpenAI voice list
func (o *OpenAI) Voices(ctx context.Context, secret, language string) ([]Voice, error) {
	return []Voice{
		{ID: "alloy", Name: "Alloy", Language: "en", Gender: "neutral", Description: "Balanced, clear voice"},
		{ID: "echo", Name: "Echo", Language: "en", Gender: "male", Description: "Deep, resonant voice"},
		{ID: "fable", Name: "Fable", Language: "en", Gender: "neutral", Description: "Expressive, storytelling voice"},
		{ID: "onyx", Name: "Onyx", Language: "en", Gender: "male", Description: "Strong, authoritative voice"},
		{ID: "nova", Name: "Nova", Language: "en", Gender: "female", Description: "Bright, energetic voice"},
		{ID: "shimmer", Name: "Shimmer", Language: "en", Gender: "female", Description: "Warm, friendly voice"},
	}, nil
}
