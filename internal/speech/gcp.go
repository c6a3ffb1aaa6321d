package speech

import (
	"context"
	"fmt"
	"strings"
	"sync"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// GCPClient is the subset of the Cloud Text-to-Speech client used here
type GCPClient interface {
	ListVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest, opts ...gax.CallOption) (*texttospeechpb.ListVoicesResponse, error)
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

// GCP implements Synthesizer for Google Cloud Text-to-Speech, authenticating with API keys.
// One client is kept per key.
type GCP struct {
	mu        sync.Mutex
	clients   map[string]GCPClient
	newClient func(ctx context.Context, secret string) (GCPClient, error)

	endpoint string
	voice    string
	language string
}

// GCPOption is a functional option for configuring GCP
type GCPOption func(*GCP)

// WithGCPEndpoint overrides the API endpoint (host:port)
func WithGCPEndpoint(endpoint string) GCPOption {
	return func(g *GCP) {
		g.endpoint = endpoint
	}
}

// WithGCPVoice sets the default voice
func WithGCPVoice(voice string) GCPOption {
	return func(g *GCP) {
		g.voice = voice
	}
}

// WithGCPLanguage sets the default language code
func WithGCPLanguage(language string) GCPOption {
	return func(g *GCP) {
		g.language = language
	}
}

// withGCPClientFactory replaces client construction, for tests
func withGCPClientFactory(fn func(ctx context.Context, secret string) (GCPClient, error)) GCPOption {
	return func(g *GCP) {
		g.newClient = fn
	}
}

// NewGCP creates a Google Cloud TTS backend
func NewGCP(opts ...GCPOption) *GCP {
	g := &GCP{
		clients:  make(map[string]GCPClient),
		voice:    "en-US-Neural2-C",
		language: "en-US",
	}
	g.newClient = g.dial

	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GCP) dial(ctx context.Context, secret string) (GCPClient, error) {
	clientOpts := []option.ClientOption{option.WithAPIKey(secret)}
	if g.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(g.endpoint))
	}
	client, err := texttospeech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GCP TTS client: %w", ErrInvalidRequest, err)
	}
	return client, nil
}

// Name returns the backend name
func (g *GCP) Name() string {
	return "gcp"
}

func (g *GCP) client(ctx context.Context, secret string) (GCPClient, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.clients[secret]; ok {
		return c, nil
	}
	c, err := g.newClient(ctx, secret)
	if err != nil {
		return nil, err
	}
	g.clients[secret] = c
	return c, nil
}

// Synthesize generates LINEAR16 audio. The response already carries a WAV header.
func (g *GCP) Synthesize(ctx context.Context, secret string, req Request) (Audio, error) {
	if !HasSpeakableText(req.Content, req.IsMarkup) {
		return Audio{}, fmt.Errorf("%w: text cannot be empty", ErrInvalidRequest)
	}

	client, err := g.client(ctx, secret)
	if err != nil {
		return Audio{}, err
	}

	voice := g.voice
	if req.Voice != "" {
		voice = req.Voice
	}
	language := languageFor(voice, req.Language, g.language)

	var input *texttospeechpb.SynthesisInput
	if req.IsMarkup || IsSSML(req.Content) {
		input = &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Ssml{Ssml: ensureSpeakRoot(req.Content)},
		}
	} else {
		input = &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: req.Content},
		}
	}

	log.Debug().
		Str("voice", voice).
		Str("language", language).
		Float64("speed", req.Speed).
		Float64("pitch", req.Pitch).
		Bool("ssml", input.GetSsml() != "").
		Msg("Making GCP TTS synthesis request")

	resp, err := client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: input,
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: language,
			Name:         voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_LINEAR16,
			SpeakingRate:  clampSpeed(req.Speed),
			Pitch:         clampPitch(req.Pitch),
		},
	})
	if err != nil {
		return Audio{}, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	return Audio{Data: resp.AudioContent, Format: FormatWAV}, nil
}

// Voices lists the voices available for language
func (g *GCP) Voices(ctx context.Context, secret, language string) ([]Voice, error) {
	client, err := g.client(ctx, secret)
	if err != nil {
		return nil, err
	}

	resp, err := client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{LanguageCode: language})
	if err != nil {
		return nil, fmt.Errorf("failed to list GCP voices: %w", err)
	}

	var voices []Voice
	for _, v := range resp.Voices {
		gender := "unknown"
		switch v.SsmlGender {
		case texttospeechpb.SsmlVoiceGender_MALE:
			gender = "male"
		case texttospeechpb.SsmlVoiceGender_FEMALE:
			gender = "female"
		case texttospeechpb.SsmlVoiceGender_NEUTRAL:
			gender = "neutral"
		}

		lang := ""
		if len(v.LanguageCodes) > 0 {
			lang = v.LanguageCodes[0]
		}
		voices = append(voices, Voice{
			ID:          v.Name,
			Name:        v.Name,
			Language:    lang,
			Gender:      gender,
			Description: fmt.Sprintf("%s voice (%s)", detectEngineType(v.Name), strings.Join(v.LanguageCodes, ", ")),
		})
	}

	log.Debug().Int("count", len(voices)).Msg("Listed GCP TTS voices")
	return voices, nil
}

// Forget closes and drops the client cached for secret
func (g *GCP) Forget(secret string) {
	g.mu.Lock()
	c, ok := g.clients[secret]
	delete(g.clients, secret)
	g.mu.Unlock()

	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close GCP TTS client")
	}
}

// Close closes every cached client
func (g *GCP) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for secret, c := range g.clients {
		_ = c.Close()
		delete(g.clients, secret)
	}
	return nil
}

// detectEngineType determines the engine type from voice name
func detectEngineType(voiceName string) string {
	name := strings.ToLower(voiceName)
	switch {
	case strings.Contains(name, "wavenet"):
		return "WaveNet"
	case strings.Contains(name, "neural2"):
		return "Neural2"
	case strings.Contains(name, "studio"):
		return "Studio"
	case strings.Contains(name, "chirp"):
		return "Chirp"
	case strings.Contains(name, "polyglot"):
		return "Polyglot"
	case strings.Contains(name, "news"):
		return "News"
	default:
		return "Standard"
	}
}

// languageFor picks an explicit language, else derives it from the voice name
// (e.g. ja-JP-Neural2-B -> ja-JP), else falls back.
func languageFor(voice, explicit, fallback string) string {
	if explicit != "" {
		return explicit
	}
	parts := strings.Split(voice, "-")
	if len(parts) >= 3 {
		return parts[0] + "-" + parts[1]
	}
	return fallback
}

func ensureSpeakRoot(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "<speak") {
		return trimmed
	}
	return "<speak>" + trimmed + "</speak>"
}
