package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "journal.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndList(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	first, err := s.Save(ctx, Interaction{
		OccurredAt:      base,
		Kind:            "call",
		Transcript:      "talked about the move",
		DurationSeconds: 42,
		AudioPath:       "/rec/recording_2026-10-19_09-00-00.wav",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	second, err := s.Save(ctx, Interaction{
		OccurredAt: base.Add(time.Hour),
		AudioPath:  "/rec/recording_2026-10-19_10-00-00.wav",
	})
	require.NoError(t, err)
	assert.Equal(t, "voice", second.Kind)

	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, "", list[0].Transcript)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, "talked about the move", list[1].Transcript)
	assert.Equal(t, 42.0, list[1].DurationSeconds)
	assert.WithinDuration(t, base, list[1].OccurredAt, time.Millisecond)

	limited, err := s.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDetachAudio(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	_, err := s.Save(ctx, Interaction{OccurredAt: time.Now(), Transcript: "keep me", AudioPath: "/rec/a.wav"})
	require.NoError(t, err)
	_, err = s.Save(ctx, Interaction{OccurredAt: time.Now(), AudioPath: "/rec/b.wav"})
	require.NoError(t, err)

	n, err := s.DetachAudio(ctx, []string{"/rec/a.wav", "/rec/missing.wav"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := s.List(ctx, 0)
	require.NoError(t, err)
	for _, in := range list {
		if in.Transcript == "keep me" {
			assert.Empty(t, in.AudioPath)
		} else {
			assert.Equal(t, "/rec/b.wav", in.AudioPath)
		}
	}
}
