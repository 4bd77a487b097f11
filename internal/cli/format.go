// Package cli holds the terminal-output helpers shared by lmassist's
// cobra subcommands: color, number/path formatting, box-drawing headers,
// and the rendering of suggested context blocks for `lmassist search`.
package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

var (
	colorHeading = color.New(color.FgCyan, color.Bold)
	colorDim     = color.New(color.FgHiBlack)
	colorScore   = color.New(color.FgGreen)
	colorWarn    = color.New(color.FgYellow)
	colorErr     = color.New(color.FgRed, color.Bold)
)

const logoText = `
  _                      _     _
 | |_ __  __ _ ___ ___ (_)___| |_
 | | '  \/ _' (_-<(_-< | (_-<|  _|
 |_|_|_|_\__,_/__/__/ |_/__/ \__|
`

// Logo prints the lmassist startup banner, used by `lmassist serve`.
func Logo(version string) {
	colorHeading.Println(strings.TrimRight(logoText, "\n"))
	colorDim.Printf("  lmassist %s — retrieval layer for coding-assistant sessions\n\n", version)
}

// ShortenHome replaces the user's home directory prefix with "~" for
// display, mirroring how most CLIs print paths.
func ShortenHome(home, path string) string {
	if home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if strings.HasPrefix(path, home+"/") {
		return "~" + strings.TrimPrefix(path, home)
	}
	return path
}

// FormatNumber inserts thousands separators, e.g. 12345 -> "12,345".
func FormatNumber(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

// Header prints a bold section title with a rule beneath it.
func Header(title string) {
	colorHeading.Println(title)
	colorDim.Println(strings.Repeat("─", max(len(title), 8)))
}

// Section prints an indented subheading.
func Section(title string) {
	fmt.Println()
	colorHeading.Printf("  %s\n", title)
}

// Box draws a rounded box around lines, sized to the longest line.
func Box(lines []string) string {
	width := 0
	for _, l := range lines {
		if len(l) > width {
			width = len(l)
		}
	}
	var b strings.Builder
	b.WriteString("╭─" + strings.Repeat("─", width) + "─╮\n")
	for _, l := range lines {
		b.WriteString(fmt.Sprintf("│ %-*s │\n", width, l))
	}
	b.WriteString("╰─" + strings.Repeat("─", width) + "─╯")
	return b.String()
}

// Footer prints a dim one-line status footer.
func Footer(msg string) {
	colorDim.Println(msg)
}

func Warn(format string, args ...any) {
	colorWarn.Printf(format+"\n", args...)
}

func Err(format string, args ...any) {
	colorErr.Printf(format+"\n", args...)
}

// SuggestedBlock is a single search/suggestion hit formatted for terminal
// display (mirrors the fields of the hits returned by GET /knowledge/search).
type SuggestedBlock struct {
	Kind    string // "knowledge" or "milestone"
	Title   string
	Ref     string // document/part or milestone ID
	Score   float64
	Snippet string
}

// RenderSuggestions renders a compact list of suggested blocks as a string,
// or a one-line empty notice when there are none.
func RenderSuggestions(blocks []SuggestedBlock, verbose bool) string {
	if len(blocks) == 0 {
		return colorDim.Sprint("  (no matching context found)")
	}
	var b strings.Builder
	for i, s := range blocks {
		scoreStr := colorScore.Sprintf("%.3f", s.Score)
		fmt.Fprintf(&b, "  %2d. [%s] %s  (%s, %s)\n", i+1, strings.ToUpper(s.Kind), s.Title, s.Ref, scoreStr)
		if verbose && s.Snippet != "" {
			snippet := s.Snippet
			if len(snippet) > 160 {
				snippet = snippet[:160] + "…"
			}
			fmt.Fprintf(&b, "      %s\n", colorDim.Sprint(snippet))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
