package loom

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	bannerTitle = color.New(color.FgCyan, color.Bold).SprintFunc()
	bannerDim   = color.New(color.Faint).SprintFunc()
	bannerAddr  = color.New(color.FgGreen).SprintFunc()
)

// bannerInfo is the snapshot printed at startup.
type bannerInfo struct {
	Name        string
	Version     string
	Environment string
	Address     string
	Modules     int
	Providers   int
	Routes      int
	Patterns    int
	Builtins    bool
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printBanner writes the startup summary. Colors are dropped when w is not
// a terminal so piped output stays clean.
func printBanner(w io.Writer, info bannerInfo) {
	title := fmt.Sprintf("%s v%s", info.Name, info.Version)
	env := fmt.Sprintf("(%s)", info.Environment)
	counts := fmt.Sprintf("modules %d, providers %d, routes %d, patterns %d",
		info.Modules, info.Providers, info.Routes, info.Patterns)
	addr := info.Address

	if isTerminal(w) {
		title = bannerTitle(title)
		env = bannerDim(env)
		counts = bannerDim(counts)
		addr = bannerAddr(addr)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", title, env)
	fmt.Fprintf(w, "  %s\n", counts)
	fmt.Fprintf(w, "  listening on %s\n", addr)
	if info.Builtins {
		paths := "health /_/health, info /_/info, metrics /_/metrics"
		if isTerminal(w) {
			paths = bannerDim(paths)
		}
		fmt.Fprintf(w, "  %s\n", paths)
	}
	fmt.Fprintln(w)
}
