package job

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/daikw/keyvox/internal/audio"
	"github.com/daikw/keyvox/internal/rotation"
	"github.com/daikw/keyvox/internal/speech"
)

func newTestBatch(t *testing.T, exec *MockExecutor, opts ...BatchOption) (*Batch, *audio.Library) {
	t.Helper()
	lib := newLibrary(t)
	opts = append([]BatchOption{WithPause(0)}, opts...)
	return NewBatch(exec, lib, NewControls(Settings{Voice: "en-US-Neural2-C"}, nil), opts...), lib
}

var threeRows = []Row{
	{Label: "first", Content: "one"},
	{Label: "second", Content: "two"},
	{Label: "third", Content: "three"},
}

func TestBatch_Load(t *testing.T) {
	b, _ := newTestBatch(t, &MockExecutor{})

	added := b.Load(threeRows[:2])
	require.Len(t, added, 2)
	assert.NotEqual(t, added[0].ID, added[1].ID)
	for _, it := range added {
		assert.Equal(t, ItemIdle, it.State)
		assert.True(t, it.Selected)
		assert.True(t, it.Result.IsZero())
	}

	b.Load(threeRows[2:])
	items := b.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "third", items[2].Label)
	assert.Equal(t, SelectionAll, b.SelectionState())
}

func TestBatch_Selection(t *testing.T) {
	b, _ := newTestBatch(t, &MockExecutor{})
	items := b.Load(threeRows)

	require.NoError(t, b.Deselect(items[1].ID))
	assert.Equal(t, SelectionPartial, b.SelectionState())

	assert.Equal(t, SelectionAll, b.ToggleAll())
	assert.Equal(t, SelectionNone, b.ToggleAll())

	require.NoError(t, b.Select(items[0].ID))
	assert.Equal(t, SelectionPartial, b.SelectionState())

	err := b.Select("missing")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestBatch_RunSelectedWithFailingMiddleItem(t *testing.T) {
	ctx := context.Background()
	exec := &MockExecutor{}
	b, lib := newTestBatch(t, exec)
	b.Load(threeRows)

	exec.On("HasActive").Return(true)
	exec.On("Execute", mock.Anything, contentIs("one")).Return(pcm, nil).Once()
	exec.On("Execute", mock.Anything, contentIs("two")).Return(speech.Audio{}, errRemote).Once()
	exec.On("Execute", mock.Anything, contentIs("three")).Return(pcm, nil).Once()

	summary, err := b.RunSelected(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Processed: 3, Succeeded: 2, Failed: 1}, summary)

	items := b.Items()
	assert.Equal(t, ItemSuccess, items[0].State)
	assert.False(t, items[0].Result.IsZero())
	assert.Empty(t, items[0].Failure)

	assert.Equal(t, ItemError, items[1].State)
	assert.True(t, items[1].Result.IsZero())
	assert.Equal(t, errRemote.Error(), items[1].Failure)

	assert.Equal(t, ItemSuccess, items[2].State)
	assert.Equal(t, 2, lib.Live())
	exec.AssertExpectations(t)
}

func TestBatch_RunSelectedRequestsUseMarkup(t *testing.T) {
	exec := &MockExecutor{}
	b, _ := newTestBatch(t, exec)
	b.Load([]Row{{Label: "a", Content: "<speak>hi</speak>"}})

	exec.On("HasActive").Return(true)
	exec.On("Execute", mock.Anything, mock.MatchedBy(func(req speech.Request) bool {
		return req.IsMarkup && req.Voice == "en-US-Neural2-C"
	})).Return(pcm, nil).Once()

	_, err := b.RunSelected(context.Background())
	require.NoError(t, err)
	exec.AssertExpectations(t)
}

func TestBatch_RunSelectedOnlyIdleOrFailedSelected(t *testing.T) {
	ctx := context.Background()
	exec := &MockExecutor{}
	b, _ := newTestBatch(t, exec)
	items := b.Load(threeRows)
	require.NoError(t, b.Deselect(items[2].ID))

	exec.On("HasActive").Return(true)
	exec.On("Execute", mock.Anything, contentIs("one")).Return(pcm, nil).Once()
	exec.On("Execute", mock.Anything, contentIs("two")).Return(speech.Audio{}, errRemote).Once()

	_, err := b.RunSelected(ctx)
	require.NoError(t, err)

	// Second run picks up only the failed item.
	exec.On("Execute", mock.Anything, contentIs("two")).Return(pcm, nil).Once()
	summary, err := b.RunSelected(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	got := b.Items()
	assert.Equal(t, ItemSuccess, got[1].State)
	assert.Equal(t, ItemIdle, got[2].State)
	exec.AssertNotCalled(t, "Execute", mock.Anything, contentIs("three"))
}

func TestBatch_RunSelectedWithoutActiveKeys(t *testing.T) {
	exec := &MockExecutor{}
	b, _ := newTestBatch(t, exec)
	b.Load(threeRows)
	exec.On("HasActive").Return(false)

	_, err := b.RunSelected(context.Background())
	assert.ErrorIs(t, err, rotation.ErrNoActiveCredentials)
	for _, it := range b.Items() {
		assert.Equal(t, ItemIdle, it.State)
	}
	exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestBatch_RunSelectedStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := &MockExecutor{}
	b, _ := newTestBatch(t, exec, WithPause(time.Hour))
	b.Load(threeRows)

	exec.On("HasActive").Return(true)
	exec.On("Execute", mock.Anything, contentIs("one")).
		Run(func(args mock.Arguments) { cancel() }).
		Return(pcm, nil).Once()

	summary, err := b.RunSelected(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Processed)

	items := b.Items()
	assert.Equal(t, ItemSuccess, items[0].State)
	assert.Equal(t, ItemIdle, items[1].State)
	assert.Equal(t, ItemIdle, items[2].State)
}

func TestBatch_ClearDuringRunDropsLateUpdates(t *testing.T) {
	exec := &MockExecutor{}
	b, lib := newTestBatch(t, exec)
	b.Load(threeRows[:2])

	exec.On("HasActive").Return(true)
	exec.On("Execute", mock.Anything, contentIs("one")).
		Run(func(args mock.Arguments) {
			b.Clear()
			require.True(t, b.Clear())
		}).
		Return(pcm, nil).Once()

	summary, err := b.RunSelected(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, lib.Live())
	exec.AssertNotCalled(t, "Execute", mock.Anything, contentIs("two"))
}

func TestBatch_RunSelectedSkipsItemRetriedMeanwhile(t *testing.T) {
	ctx := context.Background()
	exec := &MockExecutor{}
	b, lib := newTestBatch(t, exec)
	items := b.Load(threeRows)
	third := items[2].ID

	exec.On("HasActive").Return(true)
	exec.On("Execute", mock.Anything, contentIs("one")).
		Run(func(args mock.Arguments) {
			it, err := b.RetryItem(ctx, third)
			require.NoError(t, err)
			require.Equal(t, ItemSuccess, it.State)
		}).
		Return(pcm, nil).Once()
	exec.On("Execute", mock.Anything, contentIs("two")).Return(pcm, nil).Once()
	exec.On("Execute", mock.Anything, contentIs("three")).Return(pcm, nil).Once()

	retried, err := b.Item(third)
	require.NoError(t, err)
	require.Equal(t, ItemIdle, retried.State)

	summary, err := b.RunSelected(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped)
	exec.AssertNumberOfCalls(t, "Execute", 3)

	retried, err = b.Item(third)
	require.NoError(t, err)
	assert.Equal(t, ItemSuccess, retried.State)
	_, err = lib.Path(retried.Result)
	assert.NoError(t, err)
	assert.Equal(t, 3, lib.Live())
}

func TestBatch_RunSelectedRowWithoutSpeakableText(t *testing.T) {
	ctx := context.Background()
	exec := &MockExecutor{}
	b, lib := newTestBatch(t, exec)
	b.Load([]Row{
		{Label: "pause", Content: `<speak><break time="1s"/></speak>`},
		{Label: "second", Content: "two"},
	})

	exec.On("HasActive").Return(true)
	exec.On("Execute", mock.Anything, contentIs("two")).Return(pcm, nil).Once()

	summary, err := b.RunSelected(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Succeeded)

	items := b.Items()
	assert.Equal(t, ItemError, items[0].State)
	assert.Equal(t, ErrEmptyContent.Error(), items[0].Failure)
	assert.True(t, items[0].Result.IsZero())
	assert.Equal(t, ItemSuccess, items[1].State)
	assert.Equal(t, 1, lib.Live())
	exec.AssertNumberOfCalls(t, "Execute", 1)
}

func TestBatch_RetryItem(t *testing.T) {
	ctx := context.Background()
	exec := &MockExecutor{}
	b, lib := newTestBatch(t, exec)
	items := b.Load(threeRows[:1])
	id := items[0].ID

	exec.On("HasActive").Return(true)
	exec.On("Execute", mock.Anything, contentIs("one")).Return(speech.Audio{}, errRemote).Once()
	exec.On("Execute", mock.Anything, contentIs("one")).Return(pcm, nil).Twice()

	it, err := b.RetryItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ItemError, it.State)

	it, err = b.RetryItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ItemSuccess, it.State)
	first := it.Result

	// Retrying a successful item replaces its result.
	it, err = b.RetryItem(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, it.Result.ID)
	assert.Equal(t, 1, lib.Live())

	_, err = b.RetryItem(ctx, "missing")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestBatch_ClearTwoStep(t *testing.T) {
	exec := &MockExecutor{}
	b, lib := newTestBatch(t, exec)
	b.Load(threeRows)
	exec.On("HasActive").Return(true)
	exec.On("Execute", mock.Anything, mock.Anything).Return(pcm, nil)
	_, err := b.RunSelected(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, lib.Live())

	assert.False(t, b.Clear())
	assert.True(t, b.Armed())
	assert.Equal(t, 3, b.Len())

	assert.True(t, b.Clear())
	assert.False(t, b.Armed())
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, SelectionNone, b.SelectionState())
	assert.Equal(t, 0, lib.Live())

	// Clearing again changes nothing.
	assert.False(t, b.Clear())
	assert.True(t, b.Clear())
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, lib.Live())
}

func TestBatch_ClearDisarmsAfterWindow(t *testing.T) {
	b, _ := newTestBatch(t, &MockExecutor{}, WithConfirmWindow(20*time.Millisecond))
	b.Load(threeRows)

	assert.False(t, b.Clear())
	assert.Eventually(t, func() bool { return !b.Armed() }, time.Second, 5*time.Millisecond)

	assert.False(t, b.Clear())
	assert.Equal(t, 3, b.Len())
}

func TestBatch_Export(t *testing.T) {
	ctx := context.Background()
	exec := &MockExecutor{}
	b, _ := newTestBatch(t, exec)
	b.Load([]Row{
		{Label: "Hello World", Content: "one"},
		{Label: "fails", Content: "two"},
		{Label: "Hello World", Content: "three"},
		{Label: "日本語", Content: "four"},
	})

	exec.On("HasActive").Return(true)
	exec.On("Execute", mock.Anything, contentIs("two")).Return(speech.Audio{}, errRemote)
	exec.On("Execute", mock.Anything, mock.Anything).Return(pcm, nil)
	_, err := b.RunSelected(ctx)
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := b.Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.True(t, audio.IsWAV(data))
	}
	assert.Equal(t, []string{"Hello_World.wav", "Hello_World_2.wav", "item.wav"}, names)
}

func TestBatch_ExportNothing(t *testing.T) {
	b, _ := newTestBatch(t, &MockExecutor{})
	b.Load(threeRows)

	var buf bytes.Buffer
	n, err := b.Export(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, buf.Len())
}

func TestBatch_ExportFile(t *testing.T) {
	ctx := context.Background()
	exec := &MockExecutor{}
	b, _ := newTestBatch(t, exec)
	b.Load(threeRows)
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.zip")
	n, err := b.ExportFile(ctx, empty)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoFileExists(t, empty)

	exec.On("HasActive").Return(true)
	exec.On("Execute", mock.Anything, mock.Anything).Return(pcm, nil)
	_, err = b.RunSelected(ctx)
	require.NoError(t, err)

	out := filepath.Join(dir, "out.zip")
	n, err = b.ExportFile(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.FileExists(t, out)

	_, err = b.ExportFile(ctx, filepath.Join(dir, "missing", "out.zip"))
	assert.Error(t, err)
}

func TestSession_Close(t *testing.T) {
	exec := &MockExecutor{}
	lib := newLibrary(t)
	s := NewSession(exec, lib, NewControls(Settings{}, nil), WithPause(0))

	exec.On("HasActive").Return(true)
	exec.On("Execute", mock.Anything, mock.Anything).Return(pcm, nil)

	_, err := s.Single.Generate(context.Background(), "hello")
	require.NoError(t, err)
	s.Batch.Load(threeRows)
	_, err = s.Batch.RunSelected(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, lib.Live())

	s.Close()
	assert.Equal(t, 0, lib.Live())
	assert.Equal(t, 0, s.Batch.Len())
}
