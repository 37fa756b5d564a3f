package audio

import "math"

const (
	// FloorDB is the level that maps to zero on the normalized meter.
	FloorDB = -60.0

	// SilenceDB is reported for a buffer with no signal at all.
	SilenceDB = -160.0

	fullScale = 32768.0
)

// Normalize maps a decibel reading onto [0, 1] using the FloorDB floor.
func Normalize(db float64) float64 {
	if math.IsNaN(db) {
		return 0
	}
	v := (db - FloorDB) / -FloorDB
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Power returns the average (RMS) and peak power of a buffer in dBFS.
func Power(samples []int16) (avgDB, peakDB float64) {
	if len(samples) == 0 {
		return SilenceDB, SilenceDB
	}

	var sum float64
	var peak float64
	for _, s := range samples {
		v := math.Abs(float64(s))
		sum += v * v
		if v > peak {
			peak = v
		}
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	return toDB(rms), toDB(peak)
}

func toDB(amplitude float64) float64 {
	if amplitude <= 0 {
		return SilenceDB
	}
	db := 20 * math.Log10(amplitude/fullScale)
	if db < SilenceDB {
		return SilenceDB
	}
	return db
}
