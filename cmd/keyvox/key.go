package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/daikw/keyvox/internal/credential"
)

func keyCommand() *cli.Command {
	return &cli.Command{
		Name:    "key",
		Usage:   "Manage the API key pool",
		Aliases: []string{"k"},
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Register one or more API keys",
				Action:    handleKeyAdd,
				ArgsUsage: "<key>...",
			},
			{
				Name:    "list",
				Usage:   "List registered keys with status and usage",
				Action:  handleKeyList,
				Aliases: []string{"ls"},
			},
			{
				Name:      "reset",
				Usage:     "Return failed keys to active",
				Action:    handleKeyReset,
				ArgsUsage: "<number>... (or --all)",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Reset every failed key",
					},
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove registered keys",
				Action:    handleKeyRemove,
				Aliases:   []string{"rm"},
				ArgsUsage: "<number>...",
			},
		},
	}
}

func handleKeyAdd(ctx context.Context, c *cli.Command) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one key is required")
	}

	kr, err := openKeyring(ctx, c)
	if err != nil {
		return err
	}
	defer kr.Close()

	for _, secret := range c.Args().Slice() {
		cred, err := kr.pool.Add(ctx, secret)
		if err != nil {
			return fmt.Errorf("failed to add key %s: %w", credential.Mask(secret), err)
		}
		fmt.Printf("Added key %s\n", credential.Mask(cred.Secret))
	}
	return nil
}

func handleKeyList(ctx context.Context, c *cli.Command) error {
	kr, err := openKeyring(ctx, c)
	if err != nil {
		return err
	}
	defer kr.Close()

	creds := kr.pool.List()
	if len(creds) == 0 {
		fmt.Println("No keys registered. Add one with 'keyvox key add <key>'")
		return nil
	}

	active := 0
	for i, cred := range creds {
		if cred.IsActive() {
			active++
		}
		fmt.Printf("%3d  %-20s %s  uses: %s  added %s\n",
			i+1,
			credential.Mask(cred.Secret),
			statusLabel(cred.Status),
			humanize.Comma(int64(cred.UsageCount)),
			humanize.Time(cred.AddedAt),
		)
		if cred.ErrorMessage != "" {
			fmt.Printf("     %s\n", color.New(color.Faint).Sprint(cred.ErrorMessage))
		}
	}
	fmt.Printf("\n%d of %d keys active\n", active, len(creds))
	return nil
}

func statusLabel(s credential.Status) string {
	switch s {
	case credential.StatusActive:
		return color.GreenString("%-14s", s)
	case credential.StatusQuotaExceeded:
		return color.YellowString("%-14s", s)
	default:
		return color.RedString("%-14s", s)
	}
}

func handleKeyReset(ctx context.Context, c *cli.Command) error {
	kr, err := openKeyring(ctx, c)
	if err != nil {
		return err
	}
	defer kr.Close()

	var targets []credential.Credential
	if c.Bool("all") {
		for _, cred := range kr.pool.List() {
			if !cred.IsActive() {
				targets = append(targets, cred)
			}
		}
	} else {
		targets, err = selectKeys(kr.pool.List(), c.Args().Slice())
		if err != nil {
			return err
		}
	}

	for _, cred := range targets {
		if _, err := kr.pool.Reset(ctx, cred.Secret); err != nil {
			return fmt.Errorf("failed to reset key %s: %w", credential.Mask(cred.Secret), err)
		}
		fmt.Printf("Key %s is active again\n", credential.Mask(cred.Secret))
	}
	if len(targets) == 0 {
		log.Info().Msg("No keys to reset")
	}
	return nil
}

func handleKeyRemove(ctx context.Context, c *cli.Command) error {
	kr, err := openKeyring(ctx, c)
	if err != nil {
		return err
	}
	defer kr.Close()

	targets, err := selectKeys(kr.pool.List(), c.Args().Slice())
	if err != nil {
		return err
	}
	for _, cred := range targets {
		if err := kr.pool.Remove(ctx, cred.Secret); err != nil {
			return fmt.Errorf("failed to remove key %s: %w", credential.Mask(cred.Secret), err)
		}
		fmt.Printf("Removed key %s\n", credential.Mask(cred.Secret))
	}
	return nil
}

// selectKeys resolves 1-based numbers from 'key list' to credentials
func selectKeys(creds []credential.Credential, args []string) ([]credential.Credential, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one key number is required (see 'keyvox key list')")
	}
	var out []credential.Credential
	for _, arg := range args {
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || n < 1 || n > len(creds) {
			return nil, fmt.Errorf("%w: no key number %q", credential.ErrCredentialNotFound, arg)
		}
		out = append(out, creds[n-1])
	}
	return out, nil
}
