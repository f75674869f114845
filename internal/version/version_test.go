package version

import "testing"

func TestString(t *testing.T) {
	old := [3]string{Version, GitSHA, BuildTime}
	t.Cleanup(func() { Version, GitSHA, BuildTime = old[0], old[1], old[2] })

	if got := String(); got != "dev (unknown, built unknown)" {
		t.Errorf("String() = %q", got)
	}
	Version, GitSHA, BuildTime = "v0.3.0", "abc1234", "2026-03-01T12:00:00Z"
	if got := String(); got != "v0.3.0 (abc1234, built 2026-03-01T12:00:00Z)" {
		t.Errorf("String() = %q", got)
	}
}
