package audio

import (
	"strings"
	"time"
)

const (
	FilePrefix = "recording_"
	FileExt    = ".wav"

	stampLayout = "2006-01-02_15-04-05"
)

// FileName returns the capture file name for a recording started at t.
// The stamp is in UTC so every name maps to one instant, including names
// written during a daylight saving fall-back hour. Two recordings started
// within the same second share a name.
func FileName(t time.Time) string {
	return FilePrefix + t.UTC().Format(stampLayout) + FileExt
}

// ParseFileName reports the capture time encoded in a capture file name.
// Names that do not follow the capture convention return false.
func ParseFileName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, FileExt) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, FilePrefix), FileExt)
	t, err := time.Parse(stampLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
