package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/daikw/keyvox/internal/speech"
)

var ErrReleased = errors.New("audio artifact has been released")

// Handle is a revocable reference to a stored artifact
type Handle struct {
	ID     string        `json:"id"`
	Format speech.Format `json:"format"`
	Size   int           `json:"size"`
}

// IsZero reports whether h refers to nothing
func (h Handle) IsZero() bool {
	return h.ID == ""
}

// Library stores artifacts as files in a private directory.
// Every artifact lives until it is released.
type Library struct {
	mu    sync.Mutex
	dir   string
	owned bool
	live  map[string]string // id -> path
}

// NewLibrary creates a library in dir. An empty dir creates a temporary
// directory that Close removes.
func NewLibrary(dir string) (*Library, error) {
	owned := false
	if dir == "" {
		tmp, err := os.MkdirTemp("", "keyvox-audio-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create audio directory: %w", err)
		}
		dir = tmp
		owned = true
	} else if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}

	return &Library{
		dir:   dir,
		owned: owned,
		live:  make(map[string]string),
	}, nil
}

// Dir returns the directory holding the artifacts
func (l *Library) Dir() string {
	return l.dir
}

// Put stores a payload, wrapping raw PCM into WAV
func (l *Library) Put(a speech.Audio) (Handle, error) {
	data, format, err := EnsureContainer(a)
	if err != nil {
		return Handle{}, err
	}

	id := uuid.NewString()
	path := filepath.Join(l.dir, id+"."+string(format))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return Handle{}, fmt.Errorf("failed to write audio file: %w", err)
	}

	l.mu.Lock()
	l.live[id] = path
	l.mu.Unlock()

	log.Debug().Str("id", id).Int("bytes", len(data)).Msg("Stored audio artifact")
	return Handle{ID: id, Format: format, Size: len(data)}, nil
}

// Path returns the file backing h
func (l *Library) Path(h Handle) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	path, ok := l.live[h.ID]
	if !ok {
		return "", ErrReleased
	}
	return path, nil
}

// Open opens the artifact for reading
func (l *Library) Open(h Handle) (io.ReadCloser, error) {
	path, err := l.Path(h)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	return f, nil
}

// Bytes reads the whole artifact
func (l *Library) Bytes(h Handle) ([]byte, error) {
	rc, err := l.Open(h)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	return buf.Bytes(), nil
}

// Release deletes the artifact. Releasing twice, or releasing the zero handle, is a no-op.
func (l *Library) Release(h Handle) {
	if h.IsZero() {
		return
	}

	l.mu.Lock()
	path, ok := l.live[h.ID]
	delete(l.live, h.ID)
	l.mu.Unlock()

	if !ok {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("Failed to remove audio file")
	}
}

// ReleaseAll releases every live artifact and returns how many there were
func (l *Library) ReleaseAll() int {
	l.mu.Lock()
	paths := l.live
	l.live = make(map[string]string)
	l.mu.Unlock()

	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove audio file")
		}
	}
	return len(paths)
}

// Live returns the number of artifacts not yet released
func (l *Library) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}

// Close releases everything and removes the directory if the library created it
func (l *Library) Close() error {
	l.ReleaseAll()
	if l.owned {
		return os.RemoveAll(l.dir)
	}
	return nil
}
