package policyfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleDoc = `
default_action: deny
rules:
  - match_pattern: "^echo$"
    action: allow
    reason: "echo is always safe"
`

func writeDoc(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	return path
}

func TestLoader_LoadComputesPolicyHash(t *testing.T) {
	path := writeDoc(t, t.TempDir(), sampleDoc)
	l := NewLoader(path, nil, nil)
	if err := l.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if l.Engine().PolicyHash() == "" {
		t.Error("expected a non-empty policy_hash after load")
	}
}

func TestLoader_MalformedReloadKeepsPreviousEngine(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, sampleDoc)
	l := NewLoader(path, nil, nil)
	if err := l.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	goodHash := l.Engine().PolicyHash()

	if err := os.WriteFile(path, []byte("not: [valid yaml"), 0o600); err != nil {
		t.Fatalf("write malformed file: %v", err)
	}
	if err := l.Load(); err == nil {
		t.Fatal("expected an error loading malformed YAML")
	}
	if l.Engine().PolicyHash() != goodHash {
		t.Error("expected the previous engine to survive a failed reload")
	}
}

func TestLoader_WatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, sampleDoc)
	l := NewLoader(path, nil, nil)
	if err := l.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	originalHash := l.Engine().PolicyHash()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan string, 1)
	go l.Watch(ctx, 5*time.Millisecond, func(policyHash string) { reloaded <- policyHash })

	time.Sleep(10 * time.Millisecond)
	changed := sampleDoc + `  - match_pattern: "^other$"
    action: deny
    reason: "never"
`
	if err := os.WriteFile(path, []byte(changed), 0o600); err != nil {
		t.Fatalf("write changed file: %v", err)
	}
	// Ensure the mtime actually advances on filesystems with coarse
	// resolution.
	future := time.Now().Add(time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case newHash := <-reloaded:
		if newHash == originalHash {
			t.Error("expected policy_hash to change after a rule addition")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Watch to reload")
	}
}
