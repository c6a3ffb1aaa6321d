package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/daikw/keyvox/internal/audio"
	"github.com/daikw/keyvox/internal/config"
	"github.com/daikw/keyvox/internal/credential"
	"github.com/daikw/keyvox/internal/job"
	"github.com/daikw/keyvox/internal/rotation"
	"github.com/daikw/keyvox/internal/speech"
)

const keyDBName = "keys.db"

// loadConfig reads .env, then the config file, then applies global flag overrides
func loadConfig(c *cli.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	loader := config.NewLoader()
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = loader.LoadFromPath(path)
	} else {
		cfg, err = loader.Load(".")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if b := c.String("backend"); b != "" {
		cfg.Backend = b
	}
	if d := c.String("data-dir"); d != "" {
		cfg.DataDir = d
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// keyring is the opened credential pool and its backing store
type keyring struct {
	cfg     *config.Config
	pool    *credential.Pool
	closers []io.Closer
}

// openKeyring opens the key database and registers keys from the config and environment
func openKeyring(ctx context.Context, c *cli.Command) (*keyring, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	kr := &keyring{cfg: cfg}
	var backend credential.Backend
	if c.Bool("ephemeral") {
		backend = credential.NewMemoryBackend()
	} else {
		bolt := credential.NewBoltBackend(filepath.Join(cfg.DataDirOrDefault(), keyDBName))
		if err := bolt.Open(); err != nil {
			return nil, fmt.Errorf("failed to open key database: %w", err)
		}
		kr.closers = append(kr.closers, bolt)
		backend = bolt
	}

	pool, err := credential.OpenPool(ctx, credential.NewStore(backend))
	if err != nil {
		kr.Close()
		return nil, fmt.Errorf("failed to load keys: %w", err)
	}
	kr.pool = pool

	added, err := pool.Seed(ctx, cfg.Keys())
	if err != nil {
		kr.Close()
		return nil, fmt.Errorf("failed to register configured keys: %w", err)
	}
	if added > 0 {
		log.Debug().Int("added", added).Msg("Registered keys from config")
	}
	return kr, nil
}

// Close releases the key database
func (k *keyring) Close() {
	for i := len(k.closers) - 1; i >= 0; i-- {
		if err := k.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close resource")
		}
	}
	k.closers = nil
}

// runtime is everything a speech command needs
type runtime struct {
	*keyring
	synth   speech.Synthesizer
	engine  *rotation.Engine
	library *audio.Library
	session *job.Session
}

// openRuntime builds the backend, engine and session on top of the keyring
func openRuntime(ctx context.Context, c *cli.Command) (*runtime, error) {
	kr, err := openKeyring(ctx, c)
	if err != nil {
		return nil, err
	}
	cfg := kr.cfg

	synth, err := speech.New(cfg.SpeechOptions())
	if err != nil {
		kr.Close()
		return nil, err
	}
	if closer, ok := synth.(io.Closer); ok {
		kr.closers = append(kr.closers, closer)
	}
	if f, ok := synth.(speech.KeyForgetter); ok {
		kr.pool.OnRemove(f.Forget)
	}

	library, err := audio.NewLibrary("")
	if err != nil {
		kr.Close()
		return nil, err
	}
	kr.closers = append(kr.closers, library)

	engine := rotation.NewEngine(kr.pool, synth, rotation.WithObserver(logAttempt))
	controls := job.NewControls(job.Settings{
		Voice:    cfg.Voice,
		Language: cfg.Language,
		Speed:    cfg.Speed,
		Pitch:    cfg.Pitch,
		IsMarkup: cfg.Markup,
	}, cfg.BannedTerms)
	session := job.NewSession(engine, library, controls,
		job.WithPause(cfg.BatchPause()),
		job.WithConfirmWindow(cfg.ClearConfirmWindow()),
	)

	log.Debug().Str("backend", engine.Backend()).Int("keys", kr.pool.Len()).Msg("Speech runtime ready")
	return &runtime{
		keyring: kr,
		synth:   synth,
		engine:  engine,
		library: library,
		session: session,
	}, nil
}

// Close releases the session artifacts, then the keyring
func (r *runtime) Close() {
	r.session.Close()
	r.keyring.Close()
}

// applyVoiceFlags overrides session settings with flags given on the command line
func applyVoiceFlags(c *cli.Command, controls *job.Controls) error {
	if c.IsSet("speed") {
		if v := c.Float("speed"); v < 0.25 || v > 4.0 {
			return fmt.Errorf("speed must be between 0.25 and 4.0")
		}
	}
	if c.IsSet("pitch") {
		if v := c.Float("pitch"); v < -20 || v > 20 {
			return fmt.Errorf("pitch must be between -20.0 and 20.0")
		}
	}

	controls.Update(func(s *job.Settings) {
		if c.IsSet("voice") {
			s.Voice = c.String("voice")
		}
		if c.IsSet("language") {
			s.Language = c.String("language")
		}
		if c.IsSet("speed") {
			s.Speed = c.Float("speed")
		}
		if c.IsSet("pitch") {
			s.Pitch = c.Float("pitch")
		}
		if c.IsSet("markup") {
			s.IsMarkup = c.Bool("markup")
		}
	})
	return nil
}

func logAttempt(a rotation.Attempt) {
	if a.Succeeded() {
		return
	}
	log.Debug().
		Int("attempt", a.Number).
		Str("key", a.Key).
		Str("kind", a.Kind.String()).
		Dur("took", a.Duration).
		Msg("Attempt failed")
}

// readText returns the argument, or stdin when it is "-" or missing
func readText(c *cli.Command) (string, error) {
	text := strings.Join(c.Args().Slice(), " ")
	if text != "" && text != "-" {
		return text, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}
