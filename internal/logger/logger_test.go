package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeKVs(t *testing.T) {
	tests := []struct {
		name  string
		input []interface{}
		want  []interface{}
	}{
		{
			name:  "plain values pass through",
			input: []interface{}{"tool", "getIndexes", "step", 2},
			want:  []interface{}{"tool", "getIndexes", "step", 2},
		},
		{
			name:  "connection string is redacted",
			input: []interface{}{"connection_string", "postgres://u:p@h/db"},
			want:  []interface{}{"connection_string", redacted},
		},
		{
			name:  "api key is redacted regardless of case",
			input: []interface{}{"X_API_KEY", "sk-123"},
			want:  []interface{}{"X_API_KEY", redacted},
		},
		{
			name:  "dangling key is kept",
			input: []interface{}{"chat_id", "abc", "orphan"},
			want:  []interface{}{"chat_id", "abc", "orphan"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeKVs(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("sanitizeKVs() length = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sanitizeKVs()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSanitizeNestedMap(t *testing.T) {
	got := sanitizeValue("headers", map[string]interface{}{
		"x-model":    "gpt-4o",
		"dsn":        "host=localhost",
		"request_id": "r1",
	})
	m, ok := got.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map, got %T", got)
	}
	if m["dsn"] != redacted {
		t.Errorf("expected dsn to be redacted, got %v", m["dsn"])
	}
	if m["x-model"] != "gpt-4o" {
		t.Errorf("expected x-model to be kept, got %v", m["x-model"])
	}
}

func TestLoggerRedactsOutput(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("chat_id", "c1").Info("turn started", "connection_string", "postgres://secret")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["connection_string"] != redacted {
		t.Errorf("connection string leaked: %v", fields["connection_string"])
	}
	if fields["chat_id"] != "c1" {
		t.Errorf("expected chat_id field, got %v", fields["chat_id"])
	}
}
