package broker_test

import (
	"testing"
	"time"

	"github.com/xraph/courier/broker"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/wire"
)

func sampleMessage() *broker.Message {
	return &broker.Message{
		ID:       id.NewJobID(),
		Task:     "email:send",
		Queue:    "mail",
		Priority: 3,
		Payload: wire.Payload{
			"recipient": "ops@example.com",
			"count":     int64(42),
			"ratio":     0.5,
			"urgent":    true,
			"tags":      []any{"a", "b"},
		},
		EnqueuedAt: time.Now().UTC().Truncate(time.Millisecond),
		RunAt:      time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond),
	}
}

func TestGetCodec(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{broker.CodecNameJSON, "json"},
		{broker.CodecNameMsgpack, "msgpack"},
		{"", "json"},
		{"unknown", "json"},
	}
	for _, tt := range tests {
		if got := broker.GetCodec(tt.name).Name(); got != tt.want {
			t.Errorf("GetCodec(%q).Name() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestCodecRoundTrip(t *testing.T) {
	for _, codec := range []broker.Codec{&broker.JSONCodec{}, &broker.MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			original := sampleMessage()

			data, err := codec.Encode(original)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			restored, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if restored.ID.String() != original.ID.String() {
				t.Errorf("ID = %q, want %q", restored.ID, original.ID)
			}
			if restored.Task != original.Task {
				t.Errorf("Task = %q, want %q", restored.Task, original.Task)
			}
			if restored.Queue != original.Queue {
				t.Errorf("Queue = %q, want %q", restored.Queue, original.Queue)
			}
			if restored.Priority != original.Priority {
				t.Errorf("Priority = %d, want %d", restored.Priority, original.Priority)
			}
			if !restored.EnqueuedAt.Equal(original.EnqueuedAt) {
				t.Errorf("EnqueuedAt = %v, want %v", restored.EnqueuedAt, original.EnqueuedAt)
			}
			if !restored.RunAt.Equal(original.RunAt) {
				t.Errorf("RunAt = %v, want %v", restored.RunAt, original.RunAt)
			}

			if restored.Payload["recipient"] != "ops@example.com" {
				t.Errorf("payload recipient = %v", restored.Payload["recipient"])
			}
			if restored.Payload["urgent"] != true {
				t.Errorf("payload urgent = %v", restored.Payload["urgent"])
			}
		})
	}
}

// Msgpack keeps integer payload values intact; JSON degrades them to
// float64, which is exactly the fidelity loss inbound coercion exists
// for.
func TestCodecNumberFidelity(t *testing.T) {
	original := sampleMessage()

	mp := &broker.MsgpackCodec{}
	data, err := mp.Encode(original)
	if err != nil {
		t.Fatalf("msgpack Encode failed: %v", err)
	}
	restored, err := mp.Decode(data)
	if err != nil {
		t.Fatalf("msgpack Decode failed: %v", err)
	}
	if v, ok := restored.Payload["count"].(int64); !ok || v != 42 {
		t.Errorf("msgpack count = %v (%T), want int64(42)",
			restored.Payload["count"], restored.Payload["count"])
	}

	js := &broker.JSONCodec{}
	data, err = js.Encode(original)
	if err != nil {
		t.Fatalf("json Encode failed: %v", err)
	}
	restored, err = js.Decode(data)
	if err != nil {
		t.Fatalf("json Decode failed: %v", err)
	}
	if v, ok := restored.Payload["count"].(float64); !ok || v != 42 {
		t.Errorf("json count = %v (%T), want float64(42)",
			restored.Payload["count"], restored.Payload["count"])
	}
}

func TestCodecEmptyPayload(t *testing.T) {
	for _, codec := range []broker.Codec{&broker.JSONCodec{}, &broker.MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			original := &broker.Message{
				ID:         id.NewJobID(),
				Task:       "cleanup",
				Queue:      "default",
				EnqueuedAt: time.Now().UTC(),
			}
			data, err := codec.Encode(original)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			restored, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if len(restored.Payload) != 0 {
				t.Errorf("Payload = %v, want empty", restored.Payload)
			}
			if restored.Task != "cleanup" {
				t.Errorf("Task = %q", restored.Task)
			}
		})
	}
}
