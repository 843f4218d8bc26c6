//go:build integration

package mqtt

import (
	"testing"
	"time"
)

// These tests require a running MQTT broker at 127.0.0.1:1883.
//
//	go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_ConnectAndClose(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "dcsense-int-connect"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() after Close() = true")
	}
}

func TestIntegration_ControllerReadingsRoundtrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "dcsense-int-sub"
	sub, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	cfg.Broker.ClientID = "dcsense-int-pub"
	pub, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	filter := Topics{}.AllControllerReadings()
	received := make(chan int64, 1)
	err = sub.Subscribe(filter, 1, func(topic string, _ []byte) error {
		id, err := ControllerIDFromTopic(filter, topic)
		if err != nil {
			return err
		}
		received <- id
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !sub.HasSubscription(filter) {
		t.Error("subscription should be tracked")
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.PublishDefault(Topics{}.ControllerReadings(7), []byte(`[]`)); err != nil {
		t.Fatalf("PublishDefault() error = %v", err)
	}

	select {
	case id := <-received:
		if id != 7 {
			t.Errorf("controller id = %d, want 7", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}

	if err := sub.Unsubscribe(filter); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
}

func TestIntegration_BrokerRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999

	if _, err := Connect(cfg); err == nil {
		t.Fatal("Connect() to closed port should fail")
	}
}
