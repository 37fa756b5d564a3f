package recorder

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/bosley/voxlog/audio"
	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// PortAudioMicrophone records from a portaudio input device. DeviceID 0
// selects the default input. PortAudio must already be initialized.
type PortAudioMicrophone struct {
	DeviceID int
}

type portAudioCapture struct {
	mu      sync.Mutex
	file    *os.File
	out     *bufio.Writer
	stream  *portaudio.Stream
	written int
	avgDB   float64
	peakDB  float64
	err     error
}

func (m PortAudioMicrophone) Open(path string) (Capture, error) {
	params, err := inputParameters(m.DeviceID)
	if err != nil {
		return nil, err
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	if err := audio.WriteWavHeader(file, 0); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	c := &portAudioCapture{
		file:   file,
		out:    bufio.NewWriterSize(file, 64*1024),
		avgDB:  audio.SilenceDB,
		peakDB: audio.SilenceDB,
	}

	stream, err := portaudio.OpenStream(params, c.process)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}
	c.stream = stream
	return c, nil
}

// process runs on the portaudio callback thread.
func (c *portAudioCapture) process(in []int16) {
	avg, peak := audio.Power(in)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.avgDB, c.peakDB = avg, peak
	if c.err != nil {
		return
	}
	n, err := audio.WriteSamples(c.out, in)
	c.written += n
	if err != nil {
		c.err = err
		slog.Error("Failed to write audio chunk", "error", err, "file", c.file.Name())
	}
}

func (c *portAudioCapture) Power() (float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.avgDB, c.peakDB
}

func (c *portAudioCapture) Close() error {
	if err := c.stream.Stop(); err != nil {
		slog.Error("Failed to stop audio stream", "error", err)
	}
	if err := c.stream.Close(); err != nil {
		slog.Error("Failed to close audio stream", "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.file.Close()

	if c.err != nil {
		return fmt.Errorf("capture write failed: %w", c.err)
	}
	if err := c.out.Flush(); err != nil {
		return fmt.Errorf("failed to flush capture: %w", err)
	}
	if err := audio.UpdateWavHeader(c.file, uint32(c.written)); err != nil {
		return err
	}
	return c.file.Sync()
}

func inputParameters(deviceID int) (portaudio.StreamParameters, error) {
	var device *portaudio.DeviceInfo
	if deviceID > 0 { // Only use specific device if explicitly requested (non-zero)
		devices, err := portaudio.Devices()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("failed to get audio devices: %w", err)
		}
		if deviceID >= len(devices) {
			return portaudio.StreamParameters{}, fmt.Errorf("invalid device ID %d", deviceID)
		}
		device = devices[deviceID]
		if device.MaxInputChannels == 0 {
			return portaudio.StreamParameters{}, fmt.Errorf("device %d (%s) is not an input device", deviceID, device.Name)
		}
	} else {
		var err error
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("failed to get default input device: %w", err)
		}
	}

	slog.Debug("Using audio input device",
		"deviceID", deviceID,
		"deviceName", device.Name,
		"sampleRate", device.DefaultSampleRate,
		"inputChannels", device.MaxInputChannels)

	return portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: audio.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      audio.SampleRate,
		FramesPerBuffer: framesPerBuffer,
	}, nil
}

// ListAudioDevices returns the devices that can record.
func ListAudioDevices() ([]portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	// Filter to only input devices
	inputDevices := make([]portaudio.DeviceInfo, 0)
	for _, device := range devices {
		if device.MaxInputChannels > 0 {
			inputDevices = append(inputDevices, *device)
		}
	}

	return inputDevices, nil
}
