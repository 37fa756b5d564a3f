package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/youpy/go-wav"
)

const decodeChunk = 4096

// Clip is a fully decoded mono recording ready for playback.
type Clip struct {
	Path       string
	SampleRate int
	Samples    []int16
}

// Duration is the playing time of the clip at normal rate.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// DecodeWAV reads a 16-bit PCM WAV file, folding multiple channels into one.
func DecodeWAV(path string) (*Clip, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	reader := wav.NewReader(file)

	format, err := reader.Format()
	if err != nil {
		return nil, fmt.Errorf("failed to read wav format: %w", err)
	}
	if format.AudioFormat != wav.AudioFormatPCM || format.BitsPerSample != BitsPerSample {
		return nil, fmt.Errorf("unsupported wav encoding (format %d, %d bits)", format.AudioFormat, format.BitsPerSample)
	}
	if format.NumChannels == 0 || format.SampleRate == 0 {
		return nil, fmt.Errorf("invalid wav format: %d channels at %d Hz", format.NumChannels, format.SampleRate)
	}

	clip := &Clip{
		Path:       path,
		SampleRate: int(format.SampleRate),
	}
	channels := int(format.NumChannels)
	if channels > 2 {
		channels = 2
	}

	for {
		samples, err := reader.ReadSamples(decodeChunk)
		for _, s := range samples {
			var mixed int
			for ch := 0; ch < channels; ch++ {
				mixed += s.Values[ch]
			}
			clip.Samples = append(clip.Samples, int16(mixed/channels))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read wav samples: %w", err)
		}
	}

	if len(clip.Samples) == 0 {
		return nil, fmt.Errorf("no audio frames in %s", path)
	}
	return clip, nil
}
