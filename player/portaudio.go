package player

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// PortAudioOutput plays through the default output device. PortAudio must
// already be initialized.
type PortAudioOutput struct{}

func (PortAudioOutput) Open(sampleRate int, fill func(out []int16)) (Stream, error) {
	stream, err := portaudio.OpenDefaultStream(
		0,
		1,
		float64(sampleRate),
		framesPerBuffer,
		fill,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	return stream, nil
}
