package queue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHandleMessageAppendsLine(t *testing.T) {
	dir := t.TempDir()
	body := []byte(`{"event_id":"s1","type":"maintenance.status_changed","maintenance_id":"m1","drone_id":"d1",
		"status":"COMPLETED","previous_status":"IN_MAINTENANCE","drone_status":"ACTIVE","changed_by":"u1",
		"occurred_at":"2025-01-02T03:04:05Z"}`)
	if err := handleMessage(dir, body); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if err := handleMessage(dir, body); err != nil {
		t.Fatalf("handleMessage second: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "maintenance.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	want := "[2025-01-02T03:04:05Z] maintenance.status_changed | event_id=s1 | maintenance_id=m1 | drone_id=d1 | status=COMPLETED | previous_status=IN_MAINTENANCE | drone_status=ACTIVE | changed_by=u1"
	if lines[0] != want {
		t.Fatalf("unexpected line:\n got %s\nwant %s", lines[0], want)
	}
}

func TestHandleMessageRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"not json":      `{`,
		"missing type":  `{"maintenance_id":"m1"}`,
		"missing maint": `{"type":"maintenance.created"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if err := handleMessage(dir, []byte(body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := os.Stat(filepath.Join(dir, "maintenance.log")); !os.IsNotExist(err) {
		t.Fatalf("log file must not be created for rejected messages, stat err=%v", err)
	}
}
