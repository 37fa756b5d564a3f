package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ResampleForWhisper writes a 16kHz mono copy of inputPath next to it and
// returns the copy's path. The source recording is left untouched.
func ResampleForWhisper(ctx context.Context, ffmpegPath, inputPath string) (string, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	outputPath := strings.TrimSuffix(inputPath, FileExt) + "_whisper.wav"

	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-i", inputPath,
		"-ar", fmt.Sprintf("%d", whisperSampleRate),
		"-ac", "1",
		"-y", // Overwrite output file
		outputPath)

	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("failed to resample audio: %w (%s)", err, strings.TrimSpace(string(out)))
	}

	return outputPath, nil
}
