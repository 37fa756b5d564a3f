package scribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/bosley/voxlog/audio"
)

// Whisper runs the whisper CLI against a 16kHz copy of the recording.
type Whisper struct {
	// Path to whisper executable
	Path string

	// Path to whisper model
	Model string

	// ffmpeg used for resampling; "ffmpeg" from PATH when empty
	FFmpeg string

	// Upper bound for one file, zero for none
	Timeout time.Duration
}

func (w Whisper) Transcribe(ctx context.Context, path string) (string, error) {
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	resampled, err := audio.ResampleForWhisper(ctx, w.FFmpeg, path)
	if err != nil {
		return "", err
	}
	defer os.Remove(resampled)

	cmd := exec.CommandContext(ctx, w.Path,
		"--model", w.Model,
		resampled)

	slog.Debug("Executing whisper command",
		"command", cmd.String(),
		"args", cmd.Args)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			slog.Debug("Whisper command failed",
				"stderr", string(exitErr.Stderr),
				"exitCode", exitErr.ExitCode())
		}
		return "", fmt.Errorf("whisper execution failed: %w", err)
	}

	slog.Debug("Whisper command output received",
		"outputLength", len(output))

	return extractText(string(output)), nil
}

// Matches the "[00:00:00.000 --> 00:00:02.000]" prefix of subtitle lines.
var timestampPrefix = regexp.MustCompile(`^\[[0-9:.]+ --> [0-9:.]+\]`)

func extractText(output string) string {
	var builder strings.Builder
	lines := strings.Split(output, "\n")

	for _, line := range lines {
		// Skip blank audio markers
		if strings.Contains(line, "[BLANK_AUDIO]") {
			continue
		}

		text := strings.TrimSpace(timestampPrefix.ReplaceAllString(strings.TrimSpace(line), ""))
		if text != "" {
			if builder.Len() > 0 {
				builder.WriteString(" ")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}
