package ingest

import (
	"context"
	"errors"
	"time"
)

// MultiSink writes to each sink in order. The first sink is authoritative:
// its error aborts the write. Errors from the rest are joined and returned
// after every sink has been tried.
type MultiSink []Sink

// Write implements Sink.
func (m MultiSink) Write(ctx context.Context, readings []Reading) error {
	if len(m) == 0 {
		return nil
	}
	if err := m[0].Write(ctx, readings); err != nil {
		return err
	}

	var errs []error
	for _, s := range m[1:] {
		if err := s.Write(ctx, readings); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TemperatureWriter is satisfied by *influxdb.Client.
type TemperatureWriter interface {
	WriteTemperature(controllerID, bus, sensorAddr int64, temp float64, at time.Time)
}

// InfluxSink mirrors readings to a time-series database. Writes are queued
// and batched by the client, so Write never fails.
type InfluxSink struct {
	w TemperatureWriter
}

// NewInfluxSink wraps w as a Sink.
func NewInfluxSink(w TemperatureWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Write implements Sink.
func (s *InfluxSink) Write(_ context.Context, readings []Reading) error {
	for _, r := range readings {
		s.w.WriteTemperature(r.ControllerID, r.Bus, r.SensorAddr, r.Temp, r.Time)
	}
	return nil
}
