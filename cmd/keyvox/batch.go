package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/daikw/keyvox/internal/job"
)

func handleBatch(ctx context.Context, c *cli.Command) error {
	if c.NArg() != 1 {
		return fmt.Errorf("a single CSV task list is required")
	}
	output := c.String("output")
	if !strings.EqualFold(filepath.Ext(output), ".zip") {
		return fmt.Errorf("output must be a .zip file")
	}

	f, err := os.Open(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to open task list: %w", err)
	}
	rows, err := job.ParseTaskList(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("task list has no rows with content")
	}

	rt, err := openRuntime(ctx, c)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := applyVoiceFlags(c, rt.session.Controls); err != nil {
		return err
	}

	var opts []job.BatchOption
	if pause := c.Int("pause"); pause >= 0 {
		opts = append(opts, job.WithPause(time.Duration(pause)*time.Millisecond))
	} else {
		opts = append(opts, job.WithPause(rt.cfg.BatchPause()))
	}
	batch := job.NewBatch(rt.engine, rt.library, rt.session.Controls, opts...)
	defer batch.Close()

	batch.Load(rows)
	summary, err := batch.RunSelected(ctx)
	if err != nil {
		return err
	}

	for _, it := range batch.Items() {
		switch it.State {
		case job.ItemSuccess:
			fmt.Printf("%s %s\n", color.GreenString("✓"), it.Label)
		default:
			fmt.Printf("%s %s: %s\n", color.RedString("✗"), it.Label, it.Failure)
		}
	}

	n, err := batch.ExportFile(ctx, output)
	if err != nil {
		return err
	}
	fmt.Printf("\n%d succeeded, %d failed", summary.Succeeded, summary.Failed)
	if n > 0 {
		fmt.Printf("; wrote %d files to %s", n, output)
	}
	fmt.Println()

	if summary.Failed > 0 {
		log.Warn().Int("failed", summary.Failed).Msg("Some items failed; check 'keyvox key list' for key status")
	}
	return nil
}
