package diaglog

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestLogWritesNDJSON(t *testing.T) {
	t.Setenv("HUDDLELIGHT_DEBUG", "true")

	tmp := t.TempDir() + "/test.ndjson"
	l, err := New(tmp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	entries := []LogEntry{
		{Component: ComponentReachability, Event: EventBridgeOnline},
		{Component: ComponentReconciler, Event: EventMeetingStart, Reason: "slack", SessionID: "abc123"},
		{Component: ComponentReconciler, Event: EventMeetingEnd},
	}
	for _, e := range entries {
		l.Log(e)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(tmp)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []map[string]interface{}
	for scanner.Scan() {
		var m map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("invalid JSON line: %v -> %s", err, scanner.Text())
		}
		lines = append(lines, m)
	}
	if len(lines) != len(entries) {
		t.Fatalf("want %d lines, got %d", len(entries), len(lines))
	}
	if lines[0]["component"] != ComponentReachability {
		t.Errorf("component mismatch: %v", lines[0]["component"])
	}
	if lines[1]["session_id"] != "abc123" {
		t.Errorf("session_id mismatch: %v", lines[1]["session_id"])
	}
	if lines[0]["ts"] == nil {
		t.Error("ts field missing")
	}
}

func TestDisabledLoggerWritesNothing(t *testing.T) {
	t.Setenv("HUDDLELIGHT_DEBUG", "")

	tmp := t.TempDir() + "/noop.ndjson"
	l, err := New(tmp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Log(LogEntry{Component: ComponentCore, Event: EventConfigReload})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("disabled logger created a file: %v", err)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Log(LogEntry{Component: ComponentCore, Event: EventConfigReload})
	if err := l.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}

func TestRedactHidesBridgeToken(t *testing.T) {
	t.Setenv("HUDDLELIGHT_DEBUG", "true")

	tmp := t.TempDir() + "/redact.ndjson"
	l, err := New(tmp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Log(LogEntry{
		Component: ComponentBridgeClient,
		Event:     EventBridgeOnline,
		Payload: map[string]interface{}{
			"address": "192.168.1.40",
			"token":   "super-secret-bridge-token",
			"nested":  map[string]interface{}{"password": "hunter2"},
		},
	})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(tmp)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "super-secret-bridge-token") || strings.Contains(content, "hunter2") {
		t.Errorf("credentials leaked into diagnostic log: %s", content)
	}
	if !strings.Contains(content, "[REDACTED]") {
		t.Errorf("expected redaction marker, got: %s", content)
	}
	if !strings.Contains(content, "192.168.1.40") {
		t.Errorf("non-sensitive payload lost: %s", content)
	}
}

func TestRedactMatchesKeySubstrings(t *testing.T) {
	out := Redact(map[string]interface{}{
		"bridge_token": "abc",
		"AuthHeader":   "Bearer xyz",
		"lights":       []interface{}{"1", "2"},
	}).(map[string]interface{})

	if out["bridge_token"] != "[REDACTED]" {
		t.Errorf("bridge_token = %v, want redacted", out["bridge_token"])
	}
	if out["AuthHeader"] != "[REDACTED]" {
		t.Errorf("AuthHeader = %v, want redacted", out["AuthHeader"])
	}
	if got := out["lights"].([]interface{}); len(got) != 2 {
		t.Errorf("lights mangled: %v", got)
	}
}

func TestRollingTruncatesAtCap(t *testing.T) {
	tmp := t.TempDir() + "/roll.ndjson"
	const maxSize = 1024
	rw, err := newRollingWriter(tmp, maxSize)
	if err != nil {
		t.Fatalf("newRollingWriter: %v", err)
	}
	defer rw.close()

	line := []byte(strings.Repeat("x", 100) + "\n")
	for i := 0; i < 20; i++ {
		if _, err := rw.Write(line); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	info, err := os.Stat(tmp)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() > maxSize {
		t.Errorf("file size %d exceeds cap %d", info.Size(), maxSize)
	}
}
