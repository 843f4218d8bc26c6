// Package influxdb mirrors production-tier temperature readings into
// InfluxDB v2 for dashboards and long-range queries.
//
// SQLite remains the system of record; the mirror is write-only and
// best-effort. Writes are non-blocking and batched according to
// influxdb.batch_size and influxdb.flush_interval, and asynchronous write
// failures are reported through the SetOnError callback.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // mirror not configured
//	}
//	defer client.Close()
//
//	client.WriteTemperature(7, 1, 40, 21.5, readingTime)
//
// Points use measurement "temperature", tags controller, bus and
// sensor_addr, and a single float field temp.
package influxdb
