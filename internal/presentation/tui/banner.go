package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTTY reports whether stdout is attached to a terminal. Banners and
// other decoration stay out of piped or redirected output.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Width returns the terminal width, falling back to 80 columns when the
// size cannot be determined.
func Width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// PrintBanner outputs the bower startup banner with the given version.
func PrintBanner(version string) {
	p := termenv.ColorProfile()
	// Using a subtle gradient-like color scheme (Indigo/Violet)
	s1 := termenv.String("  _                            ").Foreground(p.Color("#818cf8"))
	s2 := termenv.String(" | |__   _____      _____ _ __ ").Foreground(p.Color("#a78bfa"))
	s3 := termenv.String(" | '_ \\ / _ \\ \\ /\\ / / _ \\ '__|").Foreground(p.Color("#c084fc"))
	s4 := termenv.String(" | |_) | (_) \\ V  V /  __/ |   ").Foreground(p.Color("#e879f9"))
	s5 := termenv.String(" |_.__/ \\___/ \\_/\\_/ \\___|_|   ").Foreground(p.Color("#f472b6"))
	tag := termenv.String(" stateful session host  v" + strings.TrimSpace(version)).Foreground(p.Color("#fb7185")).Faint()

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println(tag)
	fmt.Println()
}
