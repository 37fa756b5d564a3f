package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		db   float64
		want float64
	}{
		{-120, 0},
		{-60, 0},
		{-45, 0.25},
		{-30, 0.5},
		{-15, 0.75},
		{0, 1},
		{6, 1},
		{SilenceDB, 0},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, Normalize(tc.db), 1e-9, "db=%v", tc.db)
	}
}

func TestNormalizeIsMonotonic(t *testing.T) {
	prev := Normalize(-90)
	for db := -89.5; db <= 10; db += 0.5 {
		cur := Normalize(db)
		assert.GreaterOrEqual(t, cur, prev, "db=%v", db)
		prev = cur
	}
}

func TestPower(t *testing.T) {
	avg, peak := Power(nil)
	assert.Equal(t, SilenceDB, avg)
	assert.Equal(t, SilenceDB, peak)

	avg, peak = Power(make([]int16, 128))
	assert.Equal(t, SilenceDB, avg)
	assert.Equal(t, SilenceDB, peak)

	full := []int16{-32768, -32768, -32768, -32768}
	avg, peak = Power(full)
	assert.InDelta(t, 0, avg, 1e-9)
	assert.InDelta(t, 0, peak, 1e-9)

	// Half scale square wave sits at about -6 dBFS.
	half := []int16{16384, -16384, 16384, -16384}
	avg, peak = Power(half)
	assert.InDelta(t, -6.02, avg, 0.01)
	assert.InDelta(t, -6.02, peak, 0.01)

	mixed := []int16{0, 0, 0, 16384}
	avg, peak = Power(mixed)
	assert.Less(t, avg, peak)
}

func TestFileName(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	name := FileName(ts)
	assert.Equal(t, "recording_2026-03-04_05-06-07.wav", name)

	parsed, ok := ParseFileName(name)
	require.True(t, ok)
	assert.True(t, parsed.Equal(ts))
}

func TestFileNameIsUnambiguousAcrossFallBack(t *testing.T) {
	// 01:30 on the wall clock, once in daylight time and once an hour later
	// in standard time.
	first := time.Date(2026, 11, 1, 1, 30, 0, 0, time.FixedZone("EDT", -4*3600))
	second := time.Date(2026, 11, 1, 1, 30, 0, 0, time.FixedZone("EST", -5*3600))
	require.Equal(t, time.Hour, second.Sub(first))

	a, b := FileName(first), FileName(second)
	assert.NotEqual(t, a, b)

	parsedA, ok := ParseFileName(a)
	require.True(t, ok)
	parsedB, ok := ParseFileName(b)
	require.True(t, ok)
	assert.True(t, parsedA.Equal(first))
	assert.True(t, parsedB.Equal(second))
}

func TestParseFileNameRejectsForeignNames(t *testing.T) {
	for _, name := range []string{
		"notes.txt",
		"recording_2026-03-04_05-06-07.m4a",
		"recording_2026-03-04_05-06-07_whisper.wav",
		"recording_yesterday.wav",
		"audio_050607.wav",
	} {
		_, ok := ParseFileName(name)
		assert.False(t, ok, name)
	}
}

func TestWavRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName(time.Now()))
	f, err := os.Create(path)
	require.NoError(t, err)

	require.NoError(t, WriteWavHeader(f, 0))
	samples := make([]int16, SampleRate/2)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}
	n, err := WriteSamples(f, samples)
	require.NoError(t, err)
	require.NoError(t, UpdateWavHeader(f, uint32(n)))
	require.NoError(t, f.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(headerSize+n), info.Size())

	clip, err := DecodeWAV(path)
	require.NoError(t, err)
	assert.Equal(t, SampleRate, clip.SampleRate)
	assert.Equal(t, samples, clip.Samples)
	assert.Equal(t, 500*time.Millisecond, clip.Duration())
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not riff data"), 0644))

	_, err := DecodeWAV(path)
	assert.Error(t, err)

	_, err = DecodeWAV(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}
