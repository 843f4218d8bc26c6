package ingest

import (
	"fmt"
	"math"
	"time"
)

// RawReading is one reading as sent by a controller. Time is epoch seconds
// and may carry a fractional part.
type RawReading struct {
	Controller int64   `json:"controller"`
	Bus        int64   `json:"bus"`
	SensorAddr int64   `json:"sensor_addr"`
	Time       float64 `json:"time"`
	Temp       float64 `json:"temp"`
}

// Reading is a stored reading. Time has millisecond precision and is UTC.
type Reading struct {
	ControllerID int64     `json:"controller"`
	Bus          int64     `json:"bus"`
	SensorAddr   int64     `json:"sensor_addr"`
	Time         time.Time `json:"time"`
	Temp         float64   `json:"temp"`
}

// Result describes the outcome of one accepted submission.
type Result struct {
	ControllerID int64 `json:"controller"`
	Readings     int   `json:"readings"`
	Counter      int   `json:"counter"`
	Promoted     bool  `json:"promoted"`
}

// Bounds of years 0000 through 9999 in unix milliseconds. Times outside
// this range cannot be encoded as RFC 3339 on the way back out.
const (
	minEpochMillis = -62167219200000 // 0000-01-01T00:00:00Z
	maxEpochMillis = 253402300800000 // 10000-01-01T00:00:00Z, exclusive
)

// EpochToTime converts fractional epoch seconds to a UTC time rounded to
// the nearest millisecond. Non-finite values and times outside years
// 0000-9999 are rejected with ErrInvalidTime.
func EpochToTime(seconds float64) (time.Time, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return time.Time{}, ErrInvalidTime
	}
	ms := math.Round(seconds * 1000)
	if ms < minEpochMillis || ms >= maxEpochMillis {
		return time.Time{}, fmt.Errorf("%w: %v seconds is outside years 0000-9999", ErrInvalidTime, seconds)
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

// validate checks that batch is non-empty and homogeneous and converts it.
// It returns the batch's controller ID.
func validate(batch []RawReading) (int64, []Reading, error) {
	if len(batch) == 0 {
		return 0, nil, ErrEmptyBatch
	}

	controllerID := batch[0].Controller
	readings := make([]Reading, len(batch))
	for i, raw := range batch {
		if raw.Controller != controllerID {
			return 0, nil, fmt.Errorf("%w: reading %d has controller %d, expected %d",
				ErrMixedControllers, i, raw.Controller, controllerID)
		}
		at, err := EpochToTime(raw.Time)
		if err != nil {
			return 0, nil, fmt.Errorf("reading %d: %w", i, err)
		}
		readings[i] = Reading{
			ControllerID: raw.Controller,
			Bus:          raw.Bus,
			SensorAddr:   raw.SensorAddr,
			Time:         at,
			Temp:         raw.Temp,
		}
	}
	return controllerID, readings, nil
}
