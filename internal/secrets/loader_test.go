package secrets

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key")
	if err := os.WriteFile(keyFile, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	emptyFile := filepath.Join(dir, "empty")
	if err := os.WriteFile(emptyFile, []byte("\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("OUTREACH_TEST_SECRET", " from-env ")

	tests := []struct {
		name      string
		src       Source
		expect    string
		expectErr bool
	}{
		{name: "file wins", src: Source{File: keyFile, Env: "OUTREACH_TEST_SECRET", Value: "inline"}, expect: "from-file"},
		{name: "env over inline", src: Source{Env: "OUTREACH_TEST_SECRET", Value: "inline"}, expect: "from-env"},
		{name: "unset env falls back to inline", src: Source{Env: "OUTREACH_TEST_UNSET", Value: " inline "}, expect: "inline"},
		{name: "empty file", src: Source{File: emptyFile, Value: "inline"}, expectErr: true},
		{name: "missing file", src: Source{File: filepath.Join(dir, "nope")}, expectErr: true},
		{name: "nothing configured", src: Source{Name: "monday api key"}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if (err != nil) != tt.expectErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}
