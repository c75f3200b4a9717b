package promptstyle

import (
	"strings"
	"testing"
)

func TestApplySystemIsIdempotent(t *testing.T) {
	once := ApplySystem("Write the class name.", false)
	if !strings.HasPrefix(once, marker) || !strings.HasSuffix(once, "Write the class name.") {
		t.Fatalf("unexpected style block: %q", once)
	}
	if twice := ApplySystem(once, false); twice != once {
		t.Fatalf("second application changed the prompt")
	}
}

func TestApplySystemJSONMode(t *testing.T) {
	if got := ApplySystem("Build the spec.", true); !strings.Contains(got, "single JSON object") {
		t.Fatalf("json guidance missing: %q", got)
	}
	if got := ApplySystem("   ", true); got != "" {
		t.Fatalf("empty prompt should stay empty, got %q", got)
	}
}
