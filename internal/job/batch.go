package job

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/daikw/keyvox/internal/audio"
	"github.com/daikw/keyvox/internal/rotation"
	"github.com/daikw/keyvox/internal/speech"
)

const (
	DefaultPause         = 500 * time.Millisecond
	DefaultConfirmWindow = 3 * time.Second
	exportConcurrency    = 4
)

// ItemState is the state of a batch item
type ItemState string

const (
	ItemIdle    ItemState = "idle"
	ItemRunning ItemState = "running"
	ItemSuccess ItemState = "success"
	ItemError   ItemState = "error"
)

// Item is a labelled piece of content in a batch
type Item struct {
	ID       string       `json:"id"`
	Label    string       `json:"label"`
	Content  string       `json:"content"`
	State    ItemState    `json:"state"`
	Result   audio.Handle `json:"result,omitempty"`
	Failure  string       `json:"failure,omitempty"`
	Selected bool         `json:"selected"`
}

// SelectionState summarises which items are selected
type SelectionState string

const (
	SelectionNone    SelectionState = "none"
	SelectionPartial SelectionState = "partial"
	SelectionAll     SelectionState = "all"
)

// RunSummary reports the outcome of a batch run
type RunSummary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"` // removed, or settled by a retry, while the run was going
}

// Batch holds the batch items and runs them one after another
type Batch struct {
	mu       sync.Mutex
	exec     Executor
	store    ArtifactStore
	controls *Controls
	newID    func() string

	items    []*Item
	selected map[string]bool
	running  bool

	pause         time.Duration
	confirmWindow time.Duration
	armed         bool
	armGen        uint64
	disarm        *time.Timer
}

// BatchOption configures a Batch
type BatchOption func(*Batch)

// WithPause sets the minimum spacing between item starts
func WithPause(d time.Duration) BatchOption {
	return func(b *Batch) {
		b.pause = d
	}
}

// WithConfirmWindow sets how long an armed clear stays armed
func WithConfirmWindow(d time.Duration) BatchOption {
	return func(b *Batch) {
		b.confirmWindow = d
	}
}

// NewBatch creates an empty batch
func NewBatch(exec Executor, store ArtifactStore, controls *Controls, opts ...BatchOption) *Batch {
	b := &Batch{
		exec:          exec,
		store:         store,
		controls:      controls,
		newID:         uuid.NewString,
		selected:      make(map[string]bool),
		pause:         DefaultPause,
		confirmWindow: DefaultConfirmWindow,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Load appends rows as idle, selected items
func (b *Batch) Load(rows []Row) []Item {
	b.mu.Lock()
	defer b.mu.Unlock()

	added := make([]Item, 0, len(rows))
	for _, r := range rows {
		it := &Item{ID: b.newID(), Label: r.Label, Content: r.Content, State: ItemIdle}
		b.items = append(b.items, it)
		b.selected[it.ID] = true
		added = append(added, b.snapshotLocked(it))
	}
	log.Debug().Int("added", len(added)).Int("total", len(b.items)).Msg("Loaded batch items")
	return added
}

// Items returns a copy of every item in collection order
func (b *Batch) Items() []Item {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Item, len(b.items))
	for i, it := range b.items {
		out[i] = b.snapshotLocked(it)
	}
	return out
}

// Item returns a copy of one item
func (b *Batch) Item(id string) (Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	it := b.findLocked(id)
	if it == nil {
		return Item{}, ErrItemNotFound
	}
	return b.snapshotLocked(it), nil
}

// Len returns the number of items
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Select marks items as selected
func (b *Batch) Select(ids ...string) error {
	return b.setSelected(true, ids)
}

// Deselect marks items as not selected
func (b *Batch) Deselect(ids ...string) error {
	return b.setSelected(false, ids)
}

func (b *Batch) setSelected(on bool, ids []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range ids {
		if b.findLocked(id) == nil {
			return fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
	}
	for _, id := range ids {
		if on {
			b.selected[id] = true
		} else {
			delete(b.selected, id)
		}
	}
	return nil
}

// ToggleAll selects every item, or deselects every item when all are selected
func (b *Batch) ToggleAll() SelectionState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.selectionLocked() == SelectionAll {
		b.selected = make(map[string]bool)
	} else {
		for _, it := range b.items {
			b.selected[it.ID] = true
		}
	}
	return b.selectionLocked()
}

// SelectionState reports whether none, some or all items are selected
func (b *Batch) SelectionState() SelectionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selectionLocked()
}

func (b *Batch) selectionLocked() SelectionState {
	n := len(b.selected)
	switch {
	case n == 0:
		return SelectionNone
	case n == len(b.items):
		return SelectionAll
	default:
		return SelectionPartial
	}
}

// RunSelected generates every selected item that is idle or failed, in
// collection order, one at a time. A failing item does not stop the run.
func (b *Batch) RunSelected(ctx context.Context) (RunSummary, error) {
	if !b.exec.HasActive() {
		return RunSummary{}, rotation.ErrNoActiveCredentials
	}

	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return RunSummary{}, ErrRunInProgress
	}
	var queue []Item
	for _, it := range b.items {
		if b.selected[it.ID] && (it.State == ItemIdle || it.State == ItemError) {
			queue = append(queue, b.snapshotLocked(it))
		}
	}
	b.running = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	limit := rate.Inf
	if b.pause > 0 {
		limit = rate.Every(b.pause)
	}
	limiter := rate.NewLimiter(limit, 1)

	log.Info().Int("items", len(queue)).Msg("Starting batch run")

	var summary RunSummary
	for _, item := range queue {
		if err := limiter.Wait(ctx); err != nil {
			return summary, err
		}

		switch b.runItem(ctx, item, true) {
		case ItemSuccess:
			summary.Succeeded++
		case ItemError:
			summary.Failed++
		default:
			summary.Skipped++
		}
		summary.Processed++
	}

	log.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Msg("Batch run finished")
	return summary, nil
}

// RetryItem runs one item again, whatever its state
func (b *Batch) RetryItem(ctx context.Context, id string) (Item, error) {
	item, err := b.Item(id)
	if err != nil {
		return Item{}, err
	}
	if !b.exec.HasActive() {
		return item, rotation.ErrNoActiveCredentials
	}

	if b.runItem(ctx, item, false) == "" {
		return Item{}, ErrItemNotFound
	}
	return b.Item(id)
}

// runItem takes an item by value through running to success or error.
// It returns the settled state, or "" when the item disappeared. A bulk run
// leaves alone items that succeeded or started since its queue was taken.
func (b *Batch) runItem(ctx context.Context, item Item, bulk bool) ItemState {
	if !b.claim(item.ID, bulk) {
		return ""
	}

	if !speech.HasSpeakableText(item.Content, true) {
		log.Warn().Str("label", item.Label).Msg("Batch item has no text to speak")
		if !b.settle(item.ID, ItemError, audio.Handle{}, ErrEmptyContent.Error()) {
			return ""
		}
		return ItemError
	}

	req := b.controls.Settings().Request(item.Content, true)
	result, err := b.exec.Execute(ctx, req)

	var h audio.Handle
	if err == nil {
		h, err = b.store.Put(result)
	}
	if err != nil {
		log.Warn().Str("label", item.Label).Err(err).Msg("Batch item failed")
		if !b.settle(item.ID, ItemError, audio.Handle{}, err.Error()) {
			return ""
		}
		return ItemError
	}

	if !b.settle(item.ID, ItemSuccess, h, "") {
		b.store.Release(h)
		return ""
	}
	return ItemSuccess
}

// claim moves the item with id to running and drops its earlier result
func (b *Batch) claim(id string, bulk bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	it := b.findLocked(id)
	if it == nil {
		log.Debug().Str("id", id).Msg("Skipping removed batch item")
		return false
	}
	if bulk && (it.State == ItemSuccess || it.State == ItemRunning) {
		log.Debug().Str("label", it.Label).Str("state", string(it.State)).Msg("Skipping batch item settled elsewhere")
		return false
	}
	b.store.Release(it.Result)
	it.State = ItemRunning
	it.Result = audio.Handle{}
	it.Failure = ""
	return true
}

// settle applies a state change to the item with id, if it still exists.
// Any earlier result is released.
func (b *Batch) settle(id string, state ItemState, h audio.Handle, failure string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	it := b.findLocked(id)
	if it == nil {
		log.Debug().Str("id", id).Msg("Dropping update for removed batch item")
		return false
	}
	if it.Result.ID != h.ID {
		b.store.Release(it.Result)
	}
	it.State = state
	it.Result = h
	it.Failure = failure
	return true
}

// Clear empties the batch on the second call within the confirmation
// window. The first call only arms it. It reports whether the batch was cleared.
func (b *Batch) Clear() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.armed {
		b.armed = true
		b.armGen++
		gen := b.armGen
		b.disarm = time.AfterFunc(b.confirmWindow, func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.armGen == gen {
				b.armed = false
			}
		})
		return false
	}

	b.armed = false
	b.armGen++
	if b.disarm != nil {
		b.disarm.Stop()
		b.disarm = nil
	}
	n := b.clearLocked()
	log.Info().Int("items", n).Msg("Cleared batch")
	return true
}

// Armed reports whether the next Clear will empty the batch
func (b *Batch) Armed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.armed
}

func (b *Batch) clearLocked() int {
	n := len(b.items)
	for _, it := range b.items {
		b.store.Release(it.Result)
	}
	b.items = nil
	b.selected = make(map[string]bool)
	return n
}

// Close releases every artifact and empties the batch
func (b *Batch) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disarm != nil {
		b.disarm.Stop()
	}
	b.armed = false
	b.clearLocked()
}

// Export writes every successful item into a zip archive named after its
// label. It returns the number of files written; with none, it writes nothing.
func (b *Batch) Export(ctx context.Context, w io.Writer) (int, error) {
	b.mu.Lock()
	var done []Item
	for _, it := range b.items {
		if it.State == ItemSuccess {
			done = append(done, b.snapshotLocked(it))
		}
	}
	b.mu.Unlock()

	if len(done) == 0 {
		return 0, nil
	}

	data := make([][]byte, len(done))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(exportConcurrency)
	for i, it := range done {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			bs, err := b.store.Bytes(it.Result)
			if err != nil {
				return fmt.Errorf("failed to read audio for %q: %w", it.Label, err)
			}
			data[i] = bs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	bases := make([]string, len(done))
	for i, it := range done {
		bases[i] = audio.SafeFilename(it.Label)
	}
	names := audio.UniqueNames(bases)

	entries := make([]audio.Entry, len(done))
	for i, it := range done {
		entries[i] = audio.Entry{Name: names[i] + "." + string(it.Result.Format), Data: data[i]}
	}
	if err := audio.WriteArchive(w, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// ExportFile writes the archive to path. Nothing is left behind when there
// is nothing to export or the export fails.
func (b *Batch) ExportFile(ctx context.Context, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	n, err := b.Export(ctx, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close archive: %w", cerr)
	}
	if err != nil || n == 0 {
		_ = os.Remove(path)
	}
	if n > 0 && err == nil {
		log.Info().Int("files", n).Str("path", path).Msg("Exported batch")
	}
	return n, err
}

func (b *Batch) findLocked(id string) *Item {
	for _, it := range b.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (b *Batch) snapshotLocked(it *Item) Item {
	c := *it
	c.Selected = b.selected[it.ID]
	return c
}
