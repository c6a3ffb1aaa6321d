package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"
)

func handleVoices(ctx context.Context, c *cli.Command) error {
	rt, err := openRuntime(ctx, c)
	if err != nil {
		return err
	}
	defer rt.Close()

	voices, err := rt.engine.Voices(ctx, c.String("language"))
	if err != nil {
		return err
	}
	if len(voices) == 0 {
		fmt.Println("No voices found")
		return nil
	}

	fmt.Printf("Available voices for %s:\n\n", rt.synth.Name())
	for _, v := range voices {
		line := "  " + v.ID
		if v.Name != "" && v.Name != v.ID {
			line += " - " + v.Name
		}
		var details []string
		if v.Language != "" {
			details = append(details, v.Language)
		}
		if v.Description != "" {
			details = append(details, v.Description)
		}
		if len(details) > 0 {
			line += " (" + strings.Join(details, "; ") + ")"
		}
		fmt.Println(line)
	}
	return nil
}
