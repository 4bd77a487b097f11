package config

import "testing"

func TestLoadMachineIdentityPersistsAcrossCalls(t *testing.T) {
	t.Setenv(EnvDataDir, t.TempDir())

	first, err := LoadMachineIdentity()
	if err != nil {
		t.Fatalf("LoadMachineIdentity: %v", err)
	}
	if first.MachineID == "" || first.GatewayID == "" {
		t.Fatalf("expected generated identity, got %+v", first)
	}

	second, err := LoadMachineIdentity()
	if err != nil {
		t.Fatalf("LoadMachineIdentity (2nd call): %v", err)
	}
	if second != first {
		t.Errorf("expected identity to persist, got %+v then %+v", first, second)
	}
}

func TestSafeRelPath(t *testing.T) {
	cases := []struct {
		rel string
		ok  bool
	}{
		{"K001.md", true},
		{"remote/machine-a/K002.md", true},
		{"../../../etc/passwd", false},
		{"a/../../b", false},
	}
	for _, c := range cases {
		_, ok := SafeRelPath("/data/knowledge", c.rel)
		if ok != c.ok {
			t.Errorf("SafeRelPath(%q) ok=%v, want %v", c.rel, ok, c.ok)
		}
	}
}

func TestEncodeDecodeProjectPathRoundTrips(t *testing.T) {
	cases := []string{
		"/Users/dev/my-project",
		"/home/dev/a--weird--repo",
		"/",
		"/srv/apps/widget-co/backend",
	}
	for _, p := range cases {
		encoded := EncodeProjectPath(p)
		decoded := DecodeProjectPath(encoded)
		if decoded != p {
			t.Errorf("EncodeProjectPath(%q) = %q, DecodeProjectPath gave %q, want %q", p, encoded, decoded, p)
		}
	}
}

func TestApplyProfileUnknown(t *testing.T) {
	if err := ApplyProfile("nonexistent"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestDefaultSettingsMatchesDefaultProfile(t *testing.T) {
	s := DefaultSettings()
	if !s.ContextInjectKnowledge || !s.ContextInjectMilestones {
		t.Fatalf("expected default profile to enable both blocks, got %+v", s)
	}
}
