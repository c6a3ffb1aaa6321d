package job

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/daikw/keyvox/internal/audio"
	"github.com/daikw/keyvox/internal/speech"
)

// MockExecutor is a mock implementation of Executor
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, req speech.Request) (speech.Audio, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(speech.Audio), args.Error(1)
}

func (m *MockExecutor) HasActive() bool {
	args := m.Called()
	return args.Bool(0)
}

var pcm = speech.Audio{Data: []byte{1, 0, 2, 0}, Format: speech.FormatPCM}

func newLibrary(t *testing.T) *audio.Library {
	t.Helper()
	lib, err := audio.NewLibrary(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })
	return lib
}

func contentIs(content string) interface{} {
	return mock.MatchedBy(func(req speech.Request) bool {
		return req.Content == content
	})
}

var errRemote = errors.New("429 Quota exceeded")
