package job

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/daikw/keyvox/internal/speech"
)

func TestSingle_Generate(t *testing.T) {
	ctx := context.Background()
	exec := &MockExecutor{}
	lib := newLibrary(t)
	controls := NewControls(Settings{Voice: "ja-JP-Neural2-B", Speed: 1.25, Pitch: 2, IsMarkup: false}, nil)
	single := NewSingle(exec, lib, controls)

	exec.On("Execute", mock.Anything, speech.Request{
		Content: "こんにちは",
		Voice:   "ja-JP-Neural2-B",
		Speed:   1.25,
		Pitch:   2,
	}).Return(pcm, nil).Once()

	assert.Equal(t, StateIdle, single.State())
	h, err := single.Generate(ctx, "こんにちは")
	require.NoError(t, err)
	assert.False(t, h.IsZero())
	assert.Equal(t, StateDone, single.State())
	assert.Equal(t, h, single.Handle())
	assert.NoError(t, single.Err())
	assert.Equal(t, 1, lib.Live())
	exec.AssertExpectations(t)
}

func TestSingle_SupersededResultIsReleased(t *testing.T) {
	ctx := context.Background()
	exec := &MockExecutor{}
	lib := newLibrary(t)
	single := NewSingle(exec, lib, NewControls(Settings{}, nil))

	exec.On("Execute", mock.Anything, mock.Anything).Return(pcm, nil).Twice()

	first, err := single.Generate(ctx, "one")
	require.NoError(t, err)
	second, err := single.Generate(ctx, "two")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, lib.Live())
	_, err = lib.Path(first)
	assert.Error(t, err)
}

func TestSingle_FailureDropsStaleResult(t *testing.T) {
	ctx := context.Background()
	exec := &MockExecutor{}
	lib := newLibrary(t)
	single := NewSingle(exec, lib, NewControls(Settings{}, nil))

	exec.On("Execute", mock.Anything, contentIs("good")).Return(pcm, nil).Once()
	exec.On("Execute", mock.Anything, contentIs("bad")).Return(speech.Audio{}, errRemote).Once()

	_, err := single.Generate(ctx, "good")
	require.NoError(t, err)

	_, err = single.Generate(ctx, "bad")
	require.ErrorIs(t, err, errRemote)
	assert.Equal(t, StateFailed, single.State())
	assert.True(t, single.Handle().IsZero())
	assert.ErrorIs(t, single.Err(), errRemote)
	assert.Equal(t, 0, lib.Live())
}

func TestSingle_Preconditions(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		markup  bool
		banned  []string
		wantErr error
	}{
		{"empty", "", false, nil, ErrEmptyContent},
		{"whitespace", "  \n\t ", false, nil, ErrEmptyContent},
		{"ssml without text", `<speak><break time="2s"/></speak>`, false, nil, ErrEmptyContent},
		{"markup without text", `<emphasis> </emphasis>`, true, nil, ErrEmptyContent},
		{"banned", "This is a SECRET plan", false, []string{"secret", "plan", "other"}, ErrBannedContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &MockExecutor{}
			single := NewSingle(exec, newLibrary(t), NewControls(Settings{IsMarkup: tt.markup}, tt.banned))

			_, err := single.Generate(context.Background(), tt.text)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, StateFailed, single.State())
			exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
		})
	}
}

func TestSingle_BannedContentListsTerms(t *testing.T) {
	single := NewSingle(&MockExecutor{}, newLibrary(t), NewControls(Settings{}, []string{"Secret", "plan", "other"}))

	_, err := single.Generate(context.Background(), "This is a SECRET plan")
	var banned *BannedContentError
	require.True(t, errors.As(err, &banned))
	assert.Equal(t, []string{"Secret", "plan"}, banned.Terms)
	assert.Equal(t, "content contains banned terms: Secret, plan", err.Error())

	assert.Equal(t, []string{"Secret"}, single.BannedTerms("secret"))
	assert.Equal(t, 5, single.CharCount("こんにちは"))
}

func TestSingle_Reset(t *testing.T) {
	exec := &MockExecutor{}
	lib := newLibrary(t)
	single := NewSingle(exec, lib, NewControls(Settings{}, nil))
	exec.On("Execute", mock.Anything, mock.Anything).Return(pcm, nil).Once()

	_, err := single.Generate(context.Background(), "hello")
	require.NoError(t, err)

	single.Reset()
	assert.Equal(t, StateIdle, single.State())
	assert.True(t, single.Handle().IsZero())
	assert.Equal(t, 0, lib.Live())
}

func TestFindBannedTerms(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		terms    []string
		expected []string
	}{
		{"none configured", "anything", nil, nil},
		{"no match", "hello world", []string{"bye"}, nil},
		{"case insensitive", "Hello WORLD", []string{"world"}, []string{"world"}},
		{"blank terms ignored", "hello", []string{"", "  "}, nil},
		{"duplicates collapse", "hello", []string{"HELLO", "hello"}, []string{"HELLO"}},
		{"non ascii", "ÄRGER im Büro", []string{"ärger"}, []string{"ärger"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FindBannedTerms(tt.text, tt.terms))
		})
	}
}

func TestSettings_Request(t *testing.T) {
	s := Settings{Voice: "v", Language: "en-US", Speed: 1.5, Pitch: -1}
	assert.Equal(t, speech.Request{
		Content:  "hi",
		Voice:    "v",
		Language: "en-US",
		Speed:    1.5,
		Pitch:    -1,
		IsMarkup: true,
	}, s.Request("hi", true))
}

func TestControls(t *testing.T) {
	c := NewControls(Settings{Speed: 1}, []string{"a"})
	updated := c.Update(func(s *Settings) { s.Voice = "nova" })
	assert.Equal(t, "nova", updated.Voice)
	assert.Equal(t, 1.0, c.Settings().Speed)

	terms := c.BannedTerms()
	terms[0] = "mutated"
	assert.Equal(t, []string{"a"}, c.BannedTerms())

	c.SetBannedTerms([]string{"b", "c"})
	assert.Equal(t, []string{"b", "c"}, c.BannedTerms())
}
