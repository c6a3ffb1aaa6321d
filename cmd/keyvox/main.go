package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

var (
	version  = "dev"
	revision = "none"
)

func main() {
	// Logs go to stderr; stdout carries command output and the MCP protocol
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.Command{
		Name:  "keyvox",
		Usage: "Text-to-speech through a rotating pool of API keys",
		Description: `keyvox generates speech for a single text or a CSV task list.
Every request goes through a pool of registered API keys: keys that hit their
quota or are rejected are marked and skipped, and the next key takes over.`,
		Version: fmt.Sprintf("%s (rev: %s)", version, revision),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"V"},
				Usage:   "Enable verbose logging",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a config.json file",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Speech backend (gcp, polly, openai, elevenlabs)",
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Directory holding the key database",
			},
			&cli.BoolFlag{
				Name:  "ephemeral",
				Usage: "Keep keys in memory only",
			},
		},
		Commands: []*cli.Command{
			keyCommand(),
			{
				Name:      "say",
				Usage:     "Generate speech for one text",
				Action:    handleSay,
				Aliases:   []string{"s"},
				ArgsUsage: "<text|->",
				Flags: append(voiceFlags(),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the audio to this file",
					},
					&cli.BoolFlag{
						Name:  "play",
						Usage: "Play the audio",
					},
				),
			},
			{
				Name:      "batch",
				Usage:     "Generate speech for every row of a CSV task list",
				Action:    handleBatch,
				Aliases:   []string{"b"},
				ArgsUsage: "<tasks.csv>",
				Flags: append(voiceFlags(),
					&cli.StringFlag{
						Name:     "output",
						Aliases:  []string{"o"},
						Usage:    "Zip archive for the successful items",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "pause",
						Usage: "Milliseconds between item starts (default from config)",
						Value: -1,
					},
				),
			},
			{
				Name:   "voices",
				Usage:  "List the voices of the speech backend",
				Action: handleVoices,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "language",
						Aliases: []string{"l"},
						Usage:   "Only voices for this language",
					},
				},
			},
			configCommand(),
			{
				Name:   "serve",
				Usage:  "Run the MCP server on stdio",
				Action: handleServe,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) error {
			if c.Bool("verbose") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
			return nil
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("Failed to run application")
	}
}

// voiceFlags override the configured voice controls for one command
func voiceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "voice",
			Usage: "Voice ID",
		},
		&cli.StringFlag{
			Name:  "language",
			Usage: "Language code, e.g. en-US",
		},
		&cli.FloatFlag{
			Name:  "speed",
			Usage: "Speaking rate (0.25-4.0)",
		},
		&cli.FloatFlag{
			Name:  "pitch",
			Usage: "Pitch in semitones (-20 to 20)",
		},
		&cli.BoolFlag{
			Name:  "markup",
			Usage: "Treat the text as SSML",
		},
	}
}
