// Package mqtt connects dcsense-core to an MQTT broker.
//
// Controllers that hold a broker connection publish reading batches to
// dcsense/controller/{id}/readings instead of calling the HTTP API; the
// server publishes promotion events to dcsense/controller/{id}/promoted and
// keeps a retained online/offline status on dcsense/system/status (the
// offline message doubles as the Last Will).
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllControllerReadings(), 1, handle)
//
// The connection reconnects with exponential backoff and restores every
// subscription after reconnecting. Sessions are clean, so messages
// published while the server is offline are not replayed.
package mqtt
