package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/daikw/keyvox/internal/audio"
	"github.com/daikw/keyvox/internal/mcpserver"
)

func handleServe(ctx context.Context, c *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, c)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := mcpserver.New(mcpserver.Deps{
		Session:   rt.session,
		Keys:      rt.pool,
		Voices:    rt.engine,
		Artifacts: rt.library,
		Play:      audio.Play,
	}, version)
	return srv.Serve(ctx, os.Stdin, os.Stdout)
}
