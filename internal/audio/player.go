package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog/log"
)

var ErrNoPlayer = errors.New("no audio player found")

// lookPath is replaced in tests
var lookPath = exec.LookPath

// player is a command line audio player
type player struct {
	name string
	args []string
}

// players in order of preference: macOS, ALSA, PulseAudio, then ffmpeg
var players = []player{
	{name: "afplay"},
	{name: "aplay"},
	{name: "paplay"},
	{name: "ffplay", args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}},
}

// DetectPlayer returns the command used to play path
func DetectPlayer(path string) (string, []string, error) {
	for _, p := range players {
		if _, err := lookPath(p.name); err == nil {
			args := append(append([]string{}, p.args...), path)
			return p.name, args, nil
		}
	}
	return "", nil, ErrNoPlayer
}

// Play plays the file and waits for playback to finish
func Play(ctx context.Context, path string) error {
	name, args, err := DetectPlayer(path)
	if err != nil {
		return err
	}

	log.Debug().Str("player", name).Str("file", path).Msg("Playing audio")
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to play audio: %w", err)
	}
	return nil
}
