package telemetry

import "testing"

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("empty broker accepted")
	}

	e, err := New(Config{Broker: "tcp://localhost:1883"})
	if err != nil {
		t.Fatal(err)
	}
	if e.cfg.ClientID != "hsi-camera" || e.cfg.TopicPrefix != "hsi/camera" {
		t.Fatalf("defaults not applied: %+v", e.cfg)
	}
}

func TestPublishBeforeConnect(t *testing.T) {
	e, err := New(Config{Broker: "tcp://localhost:1883"})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.PublishStats(map[string]int{"frames": 1}); err == nil {
		t.Fatal("publish succeeded without a connection")
	}
	if e.Stats().Errors != 1 {
		t.Fatalf("errors = %d, want 1", e.Stats().Errors)
	}
}
