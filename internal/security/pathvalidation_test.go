package security

import (
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	base := t.TempDir()

	if err := ValidatePathWithinDirectory(filepath.Join(base, "report.json"), base); err != nil {
		t.Errorf("path inside base rejected: %v", err)
	}
	if err := ValidatePathWithinDirectory(filepath.Join(base, "sub", "report.json"), base); err != nil {
		t.Errorf("nested path rejected: %v", err)
	}
	if err := ValidatePathWithinDirectory(filepath.Join(base, "..", "escape.json"), base); err == nil {
		t.Error("parent escape accepted")
	}
	if err := ValidatePathWithinDirectory("/etc/passwd", base); err == nil {
		t.Error("absolute path outside base accepted")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"zeroflow_synthetic", "zeroflow_synthetic"},
		{"my config v2", "my_config_v2"},
		{"../../etc/passwd", "etc_passwd"},
		{"a///b", "a_b"},
		{"", "unknown"},
		{"___", "unknown"},
		{"run.2026-08", "run.2026-08"},
	}
	for _, c := range cases {
		if got := SanitizeFilename(c.in); got != c.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
