package logs

import (
	"bytes"
	"strings"
	"testing"

	"github.com/reusee/dscope"
)

func TestHandler(t *testing.T) {
	buf := new(bytes.Buffer)
	dscope.New(new(Module)).Fork(
		func() Writer {
			return buf
		},
	).Call(func(
		logger Logger,
	) {
		logger.Info("step back", "timeline", "main", "ip", 24)
	})
	if buf.Len() == 0 {
		t.Skip("running as a systemd service, terminal handler disabled")
	}
	if !strings.Contains(buf.String(), "timeline=main ip=24") {
		t.Fatalf("got %q", buf.String())
	}
}

func TestToJournalKey(t *testing.T) {
	for key, expected := range map[string]string{
		"ip":          "IP",
		"trail.len":   "TRAIL_LEN",
		"merge-label": "MERGE_LABEL",
		"r3":          "R3",
	} {
		if got := toJournalKey(key); got != expected {
			t.Fatalf("%s: got %s, want %s", key, got, expected)
		}
	}
}
