package routing

import "testing"

func TestBuildDevelopment(t *testing.T) {
	url, labels := Build("browser-session_0000beef", EnvDevelopment, "disposable.example.org")

	if url != "http://browser-session_0000beef.localhost" {
		t.Fatalf("unexpected url %q", url)
	}
	if labels["traefik.enable"] != "true" {
		t.Fatal("expected traefik.enable label")
	}
	if got := labels["traefik.http.routers.session-browser-session_0000beef.rule"]; got != "Host(`browser-session_0000beef.localhost`)" {
		t.Fatalf("unexpected rule %q", got)
	}
	if got := labels["traefik.http.routers.session-browser-session_0000beef.entrypoints"]; got != "web" {
		t.Fatalf("unexpected entrypoint %q", got)
	}
	for k := range labels {
		if k == "traefik.http.routers.session-browser-session_0000beef.tls.certresolver" {
			t.Fatal("development labels must not request TLS")
		}
	}
}

func TestBuildProduction(t *testing.T) {
	url, labels := Build("desktop-session_0000cafe", EnvProduction, "disposable.example.org")

	if url != "https://desktop-session_0000cafe.disposable.example.org" {
		t.Fatalf("unexpected url %q", url)
	}
	if got := labels["traefik.http.routers.session-desktop-session_0000cafe.rule"]; got != "Host(`desktop-session_0000cafe.disposable.example.org`)" {
		t.Fatalf("unexpected rule %q", got)
	}
	if got := labels["traefik.http.routers.session-desktop-session_0000cafe.entrypoints"]; got != "websecure" {
		t.Fatalf("unexpected entrypoint %q", got)
	}
	if got := labels["traefik.http.routers.session-desktop-session_0000cafe.tls.certresolver"]; got != "letsencrypt" {
		t.Fatalf("unexpected certresolver %q", got)
	}
}

func TestBuildURLsAreUniquePerSession(t *testing.T) {
	a, _ := Build("browser-session_00000001", EnvProduction, "disposable.example.org")
	b, _ := Build("browser-session_00000002", EnvProduction, "disposable.example.org")
	if a == b {
		t.Fatalf("expected distinct urls, got %q twice", a)
	}
}
