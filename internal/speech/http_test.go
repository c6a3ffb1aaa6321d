package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAI_Synthesize(t *testing.T) {
	t.Run("successful synthesis", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "POST", r.Method)
			assert.Equal(t, "/audio/speech", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Hello world", body["input"])
			assert.Equal(t, "nova", body["voice"])
			assert.Equal(t, "wav", body["response_format"])
			assert.Equal(t, 4.0, body["speed"])

			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("RIFFaudio"))
		}))
		defer server.Close()

		o := NewOpenAI(server.URL+"/", "")
		audio, err := o.Synthesize(context.Background(), "sk-test", Request{
			Content:  "<speak>Hello <break/> world</speak>",
			Voice:    "nova",
			Speed:    9,
			IsMarkup: true,
		})
		require.NoError(t, err)
		assert.Equal(t, FormatWAV, audio.Format)
		assert.Equal(t, "RIFFaudio", string(audio.Data))
	})

	t.Run("error status becomes RemoteError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your current quota"}}`))
		}))
		defer server.Close()

		_, err := NewOpenAI(server.URL, "").Synthesize(context.Background(), "sk-test", Request{Content: "Hi"})
		var remote *RemoteError
		require.True(t, errors.As(err, &remote))
		assert.Equal(t, http.StatusTooManyRequests, remote.StatusCode)
		assert.Contains(t, err.Error(), "status 429")
	})

	t.Run("empty text never reaches the server", func(t *testing.T) {
		hits := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
		}))
		defer server.Close()

		_, err := NewOpenAI(server.URL, "").Synthesize(context.Background(), "sk", Request{Content: "<speak> </speak>", IsMarkup: true})
		assert.ErrorIs(t, err, ErrInvalidRequest)
		assert.Zero(t, hits)
	})
}

func TestOpenAI_Voices(t *testing.T) {
	voices, err := NewOpenAI("", "").Voices(context.Background(), "", "")
	require.NoError(t, err)
	assert.Len(t, voices, 6)
}

func TestElevenLabs_Synthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "pcm_24000", r.URL.Query().Get("output_format"))
		assert.Equal(t, "xi-key", r.Header.Get("xi-api-key"))

		var body elevenLabsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Plain text", body.Text)
		assert.Equal(t, "eleven_multilingual_v2", body.ModelID)

		_, _ = w.Write([]byte{0x01, 0x02})
	}))
	defer server.Close()

	audio, err := NewElevenLabs(server.URL, "").Synthesize(context.Background(), "xi-key", Request{
		Content: "Plain text",
		Voice:   "voice-1",
	})
	require.NoError(t, err)
	assert.Equal(t, FormatPCM, audio.Format)
	assert.Equal(t, elevenLabsSampleRate, audio.SampleRate)
	assert.Equal(t, []byte{0x01, 0x02}, audio.Data)
}

func TestElevenLabs_QuotaError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":{"status":"quota_exceeded","message":"This request exceeds your quota."}}`))
	}))
	defer server.Close()

	_, err := NewElevenLabs(server.URL, "").Synthesize(context.Background(), "xi-key", Request{Content: "Hi"})
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusUnauthorized, remote.StatusCode)
	assert.Contains(t, remote.Body, "quota_exceeded")
}

func TestElevenLabs_Voices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/voices", r.URL.Path)
		_, _ = w.Write([]byte(`{"voices":[
			{"voice_id":"a","name":"Rachel","category":"premade","labels":{"language":"en","gender":"female"}},
			{"voice_id":"b","name":"Hana","category":"cloned","labels":{"language":"ja"}}
		]}`))
	}))
	defer server.Close()

	voices, err := NewElevenLabs(server.URL, "").Voices(context.Background(), "xi-key", "en-US")
	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.Equal(t, "Rachel", voices[0].Name)
	assert.Equal(t, "Premade voice", voices[0].Description)
}

func TestNew(t *testing.T) {
	tests := []struct {
		backend string
		name    string
		wantErr bool
	}{
		{"", "gcp", false},
		{"gcp", "gcp", false},
		{"polly", "polly", false},
		{"openai", "openai", false},
		{"elevenlabs", "elevenlabs", false},
		{"voicevox", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			s, err := New(Options{Backend: tt.backend})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, s.Name())
		})
	}
}
