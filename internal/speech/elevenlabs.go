package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	ElevenLabsBaseURL    = "https://api.elevenlabs.io/v1"
	elevenLabsSampleRate = 24000
	defaultElevenVoice   = "21m00Tcm4TlvDq8ikWAM" // Rachel
)

// ElevenLabs implements Synthesizer for the ElevenLabs API
type ElevenLabs struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewElevenLabs creates an ElevenLabs backend. Empty arguments select the defaults.
func NewElevenLabs(baseURL, model string) *ElevenLabs {
	if baseURL == "" {
		baseURL = ElevenLabsBaseURL
	}
	if model == "" {
		model = "eleven_multilingual_v2"
	}
	return &ElevenLabs{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Name returns the backend name
func (e *ElevenLabs) Name() string {
	return "elevenlabs"
}

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

// Synthesize generates raw 24 kHz PCM audio. Markup is reduced to plain text.
func (e *ElevenLabs) Synthesize(ctx context.Context, secret string, req Request) (Audio, error) {
	text := plainText(req)
	if text == "" {
		return Audio{}, fmt.Errorf("%w: text cannot be empty", ErrInvalidRequest)
	}

	voiceID := req.Voice
	if voiceID == "" {
		voiceID = defaultElevenVoice
	}

	jsonData, err := json.Marshal(elevenLabsRequest{Text: text, ModelID: e.model})
	if err != nil {
		return Audio{}, fmt.Errorf("%w: failed to marshal request: %w", ErrInvalidRequest, err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=pcm_%d",
		e.baseURL, url.PathEscape(voiceID), elevenLabsSampleRate)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return Audio{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", secret)

	log.Debug().Str("voice", voiceID).Str("model", e.model).Msg("Making ElevenLabs TTS request")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return Audio{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Audio{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Audio{}, &RemoteError{Backend: "ElevenLabs", StatusCode: resp.StatusCode, Body: string(body)}
	}

	return Audio{Data: body, Format: FormatPCM, SampleRate: elevenLabsSampleRate}, nil
}

type elevenLabsVoicesResponse struct {
	Voices []struct {
		VoiceID  string            `json:"voice_id"`
		Name     string            `json:"name"`
		Category string            `json:"category"`
		Labels   map[string]string `json:"labels"`
	} `json:"voices"`
}

// Voices lists the voices available to the key
func (e *ElevenLabs) Voices(ctx context.Context, secret, lang string) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", secret)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &RemoteError{Backend: "ElevenLabs", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed elevenLabsVoicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode voices: %w", err)
	}

	title := cases.Title(language.English)
	voices := make([]Voice, 0, len(parsed.Voices))
	for _, v := range parsed.Voices {
		voiceLang := v.Labels["language"]
		if lang != "" && voiceLang != "" && !strings.HasPrefix(lang, voiceLang) {
			continue
		}
		voices = append(voices, Voice{
			ID:          v.VoiceID,
			Name:        v.Name,
			Language:    voiceLang,
			Gender:      v.Labels["gender"],
			Description: fmt.Sprintf("%s voice", title.String(v.Category)),
		})
	}
	return voices, nil
}
