package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// termCallbacks renders Message/ProgressInit/ProgressStep/ProgressFree
// to stderr and answers Confirm from stdin, unless ASSUME_ALWAYS_YES or
// MAGUS is set in the environment, in which case every confirmation is
// auto-accepted without a prompt (spec.md §6).
type termCallbacks struct {
	autoYes bool
	in      *bufio.Reader
}

func newTermCallbacks() *termCallbacks {
	_, assumeYes := os.LookupEnv("ASSUME_ALWAYS_YES")
	_, magus := os.LookupEnv("MAGUS")
	return &termCallbacks{
		autoYes: assumeYes || magus,
		in:      bufio.NewReader(os.Stdin),
	}
}

func (t *termCallbacks) Message(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func (t *termCallbacks) ProgressInit(title string) {
	fmt.Fprintf(os.Stderr, "%s...\n", title)
}

func (t *termCallbacks) ProgressStep(done, total int, detail string) {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return
	}
	fmt.Fprintf(os.Stderr, "\r[%d/%d] %s", done, total, detail)
}

func (t *termCallbacks) ProgressFree() {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintln(os.Stderr)
	}
}

func (t *termCallbacks) Confirm(prompt, yesLabel, noLabel string, def bool) bool {
	if t.autoYes {
		return true
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return def
	}

	def_ := noLabel
	if def {
		def_ = yesLabel
	}
	fmt.Fprintf(os.Stderr, "%s [%s/%s] (%s): ", prompt, yesLabel, noLabel, def_)

	line, err := t.in.ReadString('\n')
	if err != nil {
		return def
	}
	line = strings.TrimSpace(strings.ToLower(line))
	if line == "" {
		return def
	}
	return line == strings.ToLower(yesLabel) || line == "y" || line == "yes"
}
