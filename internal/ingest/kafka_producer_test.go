package ingest

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/carpool-match/internal/models"
)

func TestProfileMessageRoundTrip(t *testing.T) {
	ev := models.ProfileEvent{
		CommuterID:  "c-1",
		Status:      models.StatusActive,
		IsOnboarded: true,
		UpdatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	msg, err := profileMessage(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(msg.Key) != "c-1" {
		t.Fatalf("expected key c-1, got %q", msg.Key)
	}
	got, err := DecodeProfile(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.CommuterID != ev.CommuterID || got.Status != ev.Status || !got.UpdatedAt.Equal(ev.UpdatedAt) {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestProfileMessageRequiresID(t *testing.T) {
	if _, err := profileMessage(models.ProfileEvent{}); err == nil {
		t.Fatal("expected error for empty commuter id")
	}
}

func TestDecodeProfileFallsBackToKey(t *testing.T) {
	ev, err := DecodeProfile(kafka.Message{Key: []byte("c-9"), Value: []byte(`{"status":"INACTIVE"}`)})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.CommuterID != "c-9" || ev.Status != models.StatusInactive {
		t.Fatalf("unexpected event %+v", ev)
	}
	if _, err := DecodeProfile(kafka.Message{Value: []byte("{")}); err == nil {
		t.Fatal("expected decode error")
	}
}
