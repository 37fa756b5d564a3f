// Package access answers whether the process may use the microphone and the
// speech recognizer. It only reports the decision; granting happens elsewhere.
package access

import (
	"errors"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// ErrPermissionDenied is returned when an operation needs an authorization
// that has not been granted. Retrying without an external grant will fail.
var ErrPermissionDenied = errors.New("permission denied")

type Gate interface {
	MicrophoneGranted() bool
	SpeechGranted() bool
}

// Static is a fixed decision, typically taken from flags.
type Static struct {
	Microphone bool
	Speech     bool
}

func (s Static) MicrophoneGranted() bool { return s.Microphone }
func (s Static) SpeechGranted() bool     { return s.Speech }

// DeviceGate grants the microphone only when portaudio exposes an input
// device. PortAudio must already be initialized.
type DeviceGate struct {
	Speech bool
}

func (g DeviceGate) MicrophoneGranted() bool {
	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		slog.Warn("No default input device available", "error", err)
		return false
	}
	return device.MaxInputChannels > 0
}

func (g DeviceGate) SpeechGranted() bool { return g.Speech }
