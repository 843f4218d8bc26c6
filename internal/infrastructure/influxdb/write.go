package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementTemperature is the measurement name for mirrored readings.
const MeasurementTemperature = "temperature"

// WriteTemperature queues one reading for the next batch. It is a no-op
// when the client is not connected.
func (c *Client) WriteTemperature(controllerID, bus, sensorAddr int64, temp float64, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(TemperaturePoint(controllerID, bus, sensorAddr, temp, at))
}

// TemperaturePoint builds the point for one reading.
func TemperaturePoint(controllerID, bus, sensorAddr int64, temp float64, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementTemperature,
		map[string]string{
			"controller":  strconv.FormatInt(controllerID, 10),
			"bus":         strconv.FormatInt(bus, 10),
			"sensor_addr": strconv.FormatInt(sensorAddr, 10),
		},
		map[string]interface{}{
			"temp": temp,
		},
		at,
	)
}
