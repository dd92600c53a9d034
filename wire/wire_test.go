package wire_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/xraph/courier/wire"
)

func TestNormalize(t *testing.T) {
	got, err := wire.Normalize(map[string]any{
		"name":   "job-1",
		"count":  int16(3),
		"big":    uint32(9),
		"ratio":  float32(0.25),
		"active": true,
		"note":   nil,
		"tags":   []string{"a", "b"},
		"labels": map[int]any{1: "x", 2: uint8(7)},
		"nested": map[string]any{"inner": []any{1, "two"}},
	})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	want := wire.Payload{
		"name":   "job-1",
		"count":  int64(3),
		"big":    int64(9),
		"ratio":  float64(float32(0.25)),
		"active": true,
		"note":   nil,
		"tags":   []any{"a", "b"},
		"labels": map[string]any{"1": "x", "2": int64(7)},
		"nested": map[string]any{"inner": []any{int64(1), "two"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize() =\n%#v\nwant\n%#v", got, want)
	}
}

func TestNormalizeNilInput(t *testing.T) {
	got, err := wire.Normalize(nil)
	if err != nil {
		t.Fatalf("Normalize(nil) failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Normalize(nil) = %v, want empty payload", got)
	}
}

func TestNormalizeRejectsUnsupported(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		wantErr string
	}{
		{
			name:    "channel value",
			raw:     map[string]any{"ch": make(chan int)},
			wantErr: "unsupported value type",
		},
		{
			name:    "func value",
			raw:     map[string]any{"fn": func() {}},
			wantErr: "unsupported value type",
		},
		{
			name:    "nested unsupported carries key",
			raw:     map[string]any{"outer": map[string]any{"fn": func() {}}},
			wantErr: `key "outer"`,
		},
		{
			name:    "uint64 overflow",
			raw:     map[string]any{"n": uint64(1) << 63},
			wantErr: "overflows int64",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wire.Normalize(tt.raw)
			if err == nil {
				t.Fatalf("Normalize() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Normalize() = %q, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestClone(t *testing.T) {
	original := wire.Payload{
		"name": "x",
		"tags": []any{"a"},
		"meta": map[string]any{"k": int64(1)},
	}

	clone := original.Clone()
	if !reflect.DeepEqual(clone, original) {
		t.Fatalf("Clone() = %#v, want %#v", clone, original)
	}

	clone["tags"].([]any)[0] = "mutated"
	clone["meta"].(map[string]any)["k"] = int64(2)

	if original["tags"].([]any)[0] != "a" {
		t.Error("mutating clone leaked into original slice")
	}
	if original["meta"].(map[string]any)["k"] != int64(1) {
		t.Error("mutating clone leaked into original map")
	}
}

func TestCloneNil(t *testing.T) {
	var p wire.Payload
	if p.Clone() != nil {
		t.Error("Clone of nil payload should be nil")
	}
}
