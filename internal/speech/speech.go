// Package speech adapts platform text-to-speech and speech-to-text tools.
// Missing tools degrade to no-ops; unavailability is never an error.
package speech

import (
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/banter/internal/config"
)

// Speaker reads text aloud. Speak returns immediately; nothing is acknowledged.
type Speaker interface {
	Speak(text string)
}

// Listener captures one utterance and returns it as text.
type Listener interface {
	Listen(ctx context.Context) (string, error)
	// Available reports whether dictation can be used at all.
	Available() bool
}

// Nop is the stand-in for an unavailable platform facility.
type Nop struct{}

func (Nop) Speak(string) {}

func (Nop) Listen(context.Context) (string, error) { return "", nil }

func (Nop) Available() bool { return false }

// lookPath and execCommand are swapped in tests.
var (
	lookPath    = exec.LookPath
	execCommand = exec.Command
)

// CommandSpeaker runs Args followed by "--" and the text, so text starting with "-" is never
// parsed as an option.
type CommandSpeaker struct {
	Args   []string
	Logger *zap.Logger
}

// Speak starts the command and does not wait for it.
func (s *CommandSpeaker) Speak(text string) {
	if strings.TrimSpace(text) == "" || len(s.Args) == 0 {
		return
	}
	args := append(append([]string{}, s.Args[1:]...), "--", text)
	cmd := execCommand(s.Args[0], args...)
	if err := cmd.Start(); err != nil {
		s.logger().Debug("speak command failed to start", zap.String("command", s.Args[0]), zap.Error(err))
		return
	}
	go func() { _ = cmd.Wait() }()
}

func (s *CommandSpeaker) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// CommandListener runs Args and takes its trimmed stdout as the utterance.
type CommandListener struct {
	Args []string
}

func (l *CommandListener) Available() bool { return len(l.Args) > 0 }

// Listen runs the command once. A failing command yields an empty utterance.
func (l *CommandListener) Listen(ctx context.Context) (string, error) {
	if len(l.Args) == 0 {
		return "", nil
	}
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, l.Args[0], l.Args[1:]...)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", nil
	}
	return strings.TrimSpace(out.String()), nil
}

// platformSpeakers lists candidate TTS tools per GOOS, in preference order.
var platformSpeakers = map[string][][]string{
	"darwin": {{"say"}},
	"linux":  {{"spd-say", "--wait"}, {"espeak"}},
}

// DetectSpeaker returns the configured or platform speaker, or Nop.
func DetectSpeaker(cfg *config.Config, logger *zap.Logger) Speaker {
	if cfg != nil && cfg.Mute {
		return Nop{}
	}
	if cfg != nil && len(cfg.SpeakCommand) > 0 {
		if _, err := lookPath(cfg.SpeakCommand[0]); err == nil {
			return &CommandSpeaker{Args: cfg.SpeakCommand, Logger: logger}
		}
		return Nop{}
	}
	for _, candidate := range platformSpeakers[runtime.GOOS] {
		if _, err := lookPath(candidate[0]); err == nil {
			return &CommandSpeaker{Args: candidate, Logger: logger}
		}
	}
	return Nop{}
}

// DetectListener returns a command listener when one is configured and installed, or Nop.
func DetectListener(cfg *config.Config) Listener {
	if cfg == nil || len(cfg.ListenCommand) == 0 {
		return Nop{}
	}
	if _, err := lookPath(cfg.ListenCommand[0]); err != nil {
		return Nop{}
	}
	return &CommandListener{Args: cfg.ListenCommand}
}
