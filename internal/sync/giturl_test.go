package sync

import "testing"

func TestNormalizeRemoteSSHForm(t *testing.T) {
	got, ok := NormalizeRemote("git@github.com:acme/app.git")
	if !ok {
		t.Fatal("expected SSH remote to normalize")
	}
	if got != "github.com/acme/app" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeRemoteHTTPSForm(t *testing.T) {
	got, ok := NormalizeRemote("https://github.com/acme/app.git")
	if !ok {
		t.Fatal("expected HTTPS remote to normalize")
	}
	if got != "github.com/acme/app" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeRemoteStripsTrailingSlashAndCase(t *testing.T) {
	got, ok := NormalizeRemote("https://GitHub.com/Acme/App/")
	if !ok {
		t.Fatal("expected normalization to succeed")
	}
	if got != "github.com/acme/app" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeRemoteSSHAndHTTPSMatch(t *testing.T) {
	ssh, ok1 := NormalizeRemote("git@github.com:acme/app.git")
	https, ok2 := NormalizeRemote("https://github.com/acme/app.git")
	if !ok1 || !ok2 {
		t.Fatal("expected both forms to normalize")
	}
	if ssh != https {
		t.Errorf("expected SSH and HTTPS forms to match, got %q vs %q", ssh, https)
	}
}

func TestNormalizeRemoteRejectsGarbage(t *testing.T) {
	if _, ok := NormalizeRemote(""); ok {
		t.Error("expected empty remote to be rejected")
	}
	if _, ok := NormalizeRemote("not a url at all"); ok {
		t.Error("expected garbage input to be rejected")
	}
}

func TestNormalizeRemoteIsIdempotent(t *testing.T) {
	inputs := []string{
		"git@github.com:acme/app.git",
		"https://GitHub.com/Acme/App/",
		"https://gitlab.com/acme/app.git",
	}
	for _, in := range inputs {
		once, ok := NormalizeRemote(in)
		if !ok {
			t.Fatalf("NormalizeRemote(%q) failed on first pass", in)
		}
		twice, ok := NormalizeRemote(once)
		if !ok {
			t.Fatalf("NormalizeRemote(%q) rejected its own canonical output %q", in, once)
		}
		if once != twice {
			t.Errorf("NormalizeRemote not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestIntersectsFindsSharedRemote(t *testing.T) {
	a := []string{"github.com/acme/app", "gitlab.com/acme/mirror"}
	b := []string{"bitbucket.org/other/repo", "github.com/acme/app"}
	if !Intersects(a, b) {
		t.Error("expected shared remote to be detected")
	}
}

func TestIntersectsNoOverlap(t *testing.T) {
	a := []string{"github.com/acme/app"}
	b := []string{"github.com/other/thing"}
	if Intersects(a, b) {
		t.Error("expected no overlap")
	}
}
