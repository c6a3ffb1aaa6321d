package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const pollySampleRate = 16000

// ErrMalformedPollyKey is returned when a secret is not ACCESS_KEY_ID:SECRET_ACCESS_KEY
var ErrMalformedPollyKey = errors.New("malformed API key: expected ACCESS_KEY_ID:SECRET_ACCESS_KEY")

// PollyClient interface defines the methods we need from the Polly client
type PollyClient interface {
	DescribeVoices(ctx context.Context, params *polly.DescribeVoicesInput, optFns ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error)
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Polly implements Synthesizer for Amazon Polly. Each secret is a static
// access key pair in the form ACCESS_KEY_ID:SECRET_ACCESS_KEY.
type Polly struct {
	mu        sync.Mutex
	clients   map[string]PollyClient
	newClient func(ctx context.Context, accessKeyID, secretAccessKey string) (PollyClient, error)

	region string
	engine string
	voice  string
}

// NewPolly creates an Amazon Polly backend
func NewPolly(region, engine string) *Polly {
	if region == "" {
		region = "us-east-1"
	}
	if engine == "" {
		engine = "neural"
	}
	p := &Polly{
		clients: make(map[string]PollyClient),
		region:  region,
		engine:  engine,
		voice:   "Joanna",
	}
	p.newClient = p.dial
	return p
}

func (p *Polly) dial(ctx context.Context, accessKeyID, secretAccessKey string) (PollyClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(p.region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load AWS config: %w", ErrInvalidRequest, err)
	}
	return polly.NewFromConfig(cfg), nil
}

// Name returns the backend name
func (p *Polly) Name() string {
	return "polly"
}

func (p *Polly) client(ctx context.Context, secret string) (PollyClient, error) {
	id, key, ok := strings.Cut(strings.TrimSpace(secret), ":")
	if !ok || id == "" || key == "" {
		return nil, ErrMalformedPollyKey
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[secret]; ok {
		return c, nil
	}
	c, err := p.newClient(ctx, id, key)
	if err != nil {
		return nil, err
	}
	p.clients[secret] = c
	return c, nil
}

// Forget drops the client cached for secret
func (p *Polly) Forget(secret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, secret)
}

// Synthesize generates raw 16 kHz PCM audio
func (p *Polly) Synthesize(ctx context.Context, secret string, req Request) (Audio, error) {
	if !HasSpeakableText(req.Content, req.IsMarkup) {
		return Audio{}, fmt.Errorf("%w: text cannot be empty", ErrInvalidRequest)
	}

	client, err := p.client(ctx, secret)
	if err != nil {
		return Audio{}, err
	}

	voiceID := p.voice
	if req.Voice != "" {
		voiceID = req.Voice
	}

	// Polly has no speed parameter, so plain text goes through SSML prosody.
	text := req.Content
	textType := types.TextTypeText
	switch {
	case req.IsMarkup || IsSSML(text):
		text = ensureSpeakRoot(text)
		textType = types.TextTypeSsml
	case clampSpeed(req.Speed) != 1.0:
		// Neural voices reject prosody pitch, so only the rate is applied.
		text = WrapSSML(text, req.Speed, 0)
		textType = types.TextTypeSsml
	}

	input := &polly.SynthesizeSpeechInput{
		OutputFormat: types.OutputFormatPcm,
		SampleRate:   aws.String(fmt.Sprintf("%d", pollySampleRate)),
		Text:         aws.String(text),
		TextType:     textType,
		VoiceId:      types.VoiceId(voiceID),
		Engine:       types.Engine(p.engine),
	}
	if req.Language != "" {
		input.LanguageCode = types.LanguageCode(req.Language)
	}

	log.Debug().
		Str("voice", voiceID).
		Str("engine", p.engine).
		Str("text_type", string(textType)).
		Msg("Making Polly synthesis request")

	out, err := client.SynthesizeSpeech(ctx, input)
	if err != nil {
		return Audio{}, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	defer func() { _ = out.AudioStream.Close() }()

	data, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return Audio{}, fmt.Errorf("failed to read audio stream: %w", err)
	}

	return Audio{Data: data, Format: FormatPCM, SampleRate: pollySampleRate}, nil
}

// Voices returns available Amazon Polly voices
func (p *Polly) Voices(ctx context.Context, secret, lang string) ([]Voice, error) {
	client, err := p.client(ctx, secret)
	if err != nil {
		return nil, err
	}

	input := &polly.DescribeVoicesInput{Engine: types.Engine(p.engine)}
	if lang != "" {
		input.LanguageCode = types.LanguageCode(lang)
	}

	result, err := client.DescribeVoices(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list Polly voices: %w", err)
	}

	voices := make([]Voice, 0, len(result.Voices))
	for _, v := range result.Voices {
		voice := Voice{
			ID:       string(v.Id),
			Name:     aws.ToString(v.Name),
			Language: string(v.LanguageCode),
			Description: fmt.Sprintf("%s voice, %s engine supported",
				cases.Title(language.English).String(string(v.Gender)),
				formatSupportedEngines(v.SupportedEngines)),
		}

		switch v.Gender {
		case types.GenderFemale:
			voice.Gender = "female"
		case types.GenderMale:
			voice.Gender = "male"
		}

		voices = append(voices, voice)
	}

	return voices, nil
}

func formatSupportedEngines(engines []types.Engine) string {
	if len(engines) == 0 {
		return "standard"
	}
	names := make([]string, len(engines))
	for i, e := range engines {
		names[i] = string(e)
	}
	return strings.Join(names, "/")
}
