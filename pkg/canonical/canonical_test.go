package canonical_test

import (
	"strings"
	"testing"

	"github.com/justinbach/migration-pipeline/pkg/canonical"
)

func TestMarshal(t *testing.T) {
	t.Run("sorts map keys", func(t *testing.T) {
		a, err := canonical.Marshal(map[string]int{"b": 2, "a": 1, "c": 3})
		if err != nil {
			t.Fatalf("Marshal error: %v", err)
		}
		if string(a) != `{"a":1,"b":2,"c":3}` {
			t.Errorf("Marshal = %s", a)
		}
	})

	t.Run("preserves markup", func(t *testing.T) {
		got, err := canonical.Marshal(map[string]string{"body": "<p>a & b</p>"})
		if err != nil {
			t.Fatalf("Marshal error: %v", err)
		}
		if !strings.Contains(string(got), "<p>a & b</p>") {
			t.Errorf("Marshal escaped markup: %s", got)
		}
	})

	t.Run("no trailing newline", func(t *testing.T) {
		got, _ := canonical.Marshal([]int{1})
		if strings.HasSuffix(string(got), "\n") {
			t.Error("Marshal output ends with newline")
		}
	})
}

func TestHash(t *testing.T) {
	if canonical.Hash(nil) != "" {
		t.Error("Hash(nil) should be empty")
	}

	a := canonical.Hash([]byte(`{"a":1}`))
	b := canonical.Hash([]byte(`{"a":1}`))
	if a != b {
		t.Errorf("Hash not stable: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("Hash length = %d, want 64", len(a))
	}
	if a == canonical.Hash([]byte(`{"a":2}`)) {
		t.Error("different input produced equal hash")
	}
}
