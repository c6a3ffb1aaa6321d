package speech

import "fmt"

// Backend names
const (
	BackendGCP        = "gcp"
	BackendPolly      = "polly"
	BackendOpenAI     = "openai"
	BackendElevenLabs = "elevenlabs"
)

// Backends lists the supported backend names
func Backends() []string {
	return []string{BackendGCP, BackendPolly, BackendOpenAI, BackendElevenLabs}
}

// Options selects and configures a backend
type Options struct {
	Backend string

	GCPEndpoint string
	Voice       string
	Language    string

	PollyRegion string
	PollyEngine string

	OpenAIBaseURL string
	OpenAIModel   string

	ElevenLabsBaseURL string
	ElevenLabsModel   string
}

// New creates the backend named in opts. An empty name selects gcp.
func New(opts Options) (Synthesizer, error) {
	switch opts.Backend {
	case BackendGCP, "":
		gcpOpts := []GCPOption{WithGCPEndpoint(opts.GCPEndpoint)}
		if opts.Voice != "" {
			gcpOpts = append(gcpOpts, WithGCPVoice(opts.Voice))
		}
		if opts.Language != "" {
			gcpOpts = append(gcpOpts, WithGCPLanguage(opts.Language))
		}
		return NewGCP(gcpOpts...), nil
	case BackendPolly:
		return NewPolly(opts.PollyRegion, opts.PollyEngine), nil
	case BackendOpenAI:
		return NewOpenAI(opts.OpenAIBaseURL, opts.OpenAIModel), nil
	case BackendElevenLabs:
		return NewElevenLabs(opts.ElevenLabsBaseURL, opts.ElevenLabsModel), nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", opts.Backend)
	}
}
