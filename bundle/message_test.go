package bundle

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseMessagePlainString(t *testing.T) {
	msgs, err := ParseMessage([]byte("  thanks for installing\n"))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	want := []Message{{Text: "thanks for installing", Type: MessageAlways}}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMessageJSONArray(t *testing.T) {
	data := []byte(`[
		{"message": "always shown", "type": "always"},
		{"message": "upgrade notice", "type": "upgrade", "minimum_version": "1.0", "maximum_version": "2.0"}
	]`)
	msgs, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[1].Type != MessageUpgrade || msgs[1].MinimumVersion != "1.0" {
		t.Errorf("msgs[1] = %+v", msgs[1])
	}
}

func TestParseMessageEmpty(t *testing.T) {
	msgs, err := ParseMessage([]byte("   "))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msgs != nil {
		t.Errorf("msgs = %+v, want nil", msgs)
	}
}

func TestSelectVersionWindow(t *testing.T) {
	msgs := []Message{
		{Text: "always", Type: MessageAlways},
		{Text: "upgrade-in-window", Type: MessageUpgrade, MinimumVersion: "1.0", MaximumVersion: "2.0"},
		{Text: "upgrade-out-of-window", Type: MessageUpgrade, MinimumVersion: "3.0"},
		{Text: "install-only", Type: MessageInstall},
	}

	got := Select(msgs, MessageUpgrade, "1.5")
	want := []string{"always", "upgrade-in-window"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Select mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectUnboundedWindow(t *testing.T) {
	msgs := []Message{{Text: "no bounds", Type: MessageUpgrade}}
	got := Select(msgs, MessageUpgrade, "999.0")
	if len(got) != 1 {
		t.Fatalf("got = %+v, want one match", got)
	}
}
