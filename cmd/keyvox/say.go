package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/daikw/keyvox/internal/audio"
	"github.com/daikw/keyvox/internal/job"
)

func handleSay(ctx context.Context, c *cli.Command) error {
	text, err := readText(c)
	if err != nil {
		return err
	}
	output := c.String("output")
	if output == "" && !c.Bool("play") {
		return fmt.Errorf("nothing to do: pass --output <file> and/or --play")
	}

	rt, err := openRuntime(ctx, c)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := applyVoiceFlags(c, rt.session.Controls); err != nil {
		return err
	}

	single := rt.session.Single
	if terms := single.BannedTerms(text); len(terms) > 0 {
		return &job.BannedContentError{Terms: terms}
	}
	log.Info().Int("chars", single.CharCount(text)).Msg("Generating speech")

	h, err := single.Generate(ctx, text)
	if err != nil {
		return err
	}

	if output != "" {
		data, err := rt.library.Bytes(h)
		if err != nil {
			return err
		}
		if ext := filepath.Ext(output); ext != "" && !strings.EqualFold(ext[1:], string(h.Format)) {
			log.Warn().Str("format", string(h.Format)).Str("file", output).Msg("Output extension does not match audio format")
		}
		if err := os.WriteFile(output, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		fmt.Printf("%s %s (%s)\n", color.GreenString("Saved"), output, humanize.Bytes(uint64(h.Size)))
	}

	if c.Bool("play") {
		path, err := rt.library.Path(h)
		if err != nil {
			return err
		}
		if err := audio.Play(ctx, path); err != nil {
			if errors.Is(err, audio.ErrNoPlayer) && output != "" {
				log.Warn().Err(err).Msg("Skipping playback")
				return nil
			}
			return err
		}
	}
	return nil
}
