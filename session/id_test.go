package session

import (
	"regexp"
	"strings"
	"sync"
	"testing"
)

func TestGenerateIDFormat(t *testing.T) {
	browserPattern := regexp.MustCompile(`^browser-session_[0-9a-f]{8}$`)
	desktopPattern := regexp.MustCompile(`^desktop-session_[0-9a-f]{8}$`)

	id := GenerateID(TypeBrowser)
	if !browserPattern.MatchString(id) {
		t.Fatalf("unexpected browser id format: %s", id)
	}

	id = GenerateID(TypeDesktop)
	if !desktopPattern.MatchString(id) {
		t.Fatalf("unexpected desktop id format: %s", id)
	}
}

func TestGenerateIDTypePrefix(t *testing.T) {
	if !strings.HasPrefix(GenerateID(TypeBrowser), "browser-") {
		t.Fatal("expected browser prefix")
	}
	if !strings.HasPrefix(GenerateID(TypeDesktop), "desktop-") {
		t.Fatal("expected desktop prefix")
	}
}

func TestGenerateIDConcurrentUniqueness(t *testing.T) {
	const n = 1000

	var mu sync.Mutex
	seen := make(map[string]bool, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			id := GenerateID(TypeBrowser)
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("expected %d distinct ids, got %d", n, len(seen))
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusRunning.Terminal() {
		t.Fatal("running must not be terminal")
	}
	for _, s := range []Status{StatusStopped, StatusExpired, StatusError} {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
}
