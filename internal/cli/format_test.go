package cli

import "testing"

func TestFormatNumber(t *testing.T) {
	cases := map[int]string{
		0:        "0",
		5:        "5",
		1234:     "1,234",
		1234567:  "1,234,567",
		-42000:   "-42,000",
	}
	for in, want := range cases {
		if got := FormatNumber(in); got != want {
			t.Errorf("FormatNumber(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestShortenHome(t *testing.T) {
	home := "/home/alice"
	if got := ShortenHome(home, "/home/alice/project/x.go"); got != "~/project/x.go" {
		t.Errorf("got %q", got)
	}
	if got := ShortenHome(home, home); got != "~" {
		t.Errorf("got %q", got)
	}
	if got := ShortenHome(home, "/other/path"); got != "/other/path" {
		t.Errorf("got %q", got)
	}
}

func TestRenderSuggestionsEmpty(t *testing.T) {
	out := RenderSuggestions(nil, false)
	if out == "" {
		t.Fatal("expected non-empty placeholder text")
	}
}
