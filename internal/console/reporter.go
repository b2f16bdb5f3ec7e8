// Package console renders progress and results for the command-line tools.
package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// Reporter prints bootstrap progress in the form "Defining schema...OK".
type Reporter struct {
	mu      sync.Mutex
	w       io.Writer
	ok      *color.Color
	fail    *color.Color
	pending bool
}

// NewReporter returns a Reporter writing to w. Colors are emitted only when colored
// is true.
func NewReporter(w io.Writer, colored bool) *Reporter {
	ok := color.New(color.FgGreen, color.Bold)
	fail := color.New(color.FgRed, color.Bold)
	if colored {
		ok.EnableColor()
		fail.EnableColor()
	} else {
		ok.DisableColor()
		fail.DisableColor()
	}
	return &Reporter{w: w, ok: ok, fail: fail}
}

func (r *Reporter) Info(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLine()
	fmt.Fprintln(r.w, msg)
}

func (r *Reporter) Step(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLine()
	fmt.Fprint(r.w, msg)
	r.pending = true
}

func (r *Reporter) OK() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ok.Fprintln(r.w, "OK")
	r.pending = false
}

func (r *Reporter) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail.Fprintln(r.w, "FAILED")
	r.pending = false
	if err != nil {
		fmt.Fprintf(r.w, "  %v\n", err)
	}
}

// endLine terminates a step line left open by a step that never reported.
func (r *Reporter) endLine() {
	if r.pending {
		fmt.Fprintln(r.w)
		r.pending = false
	}
}

// Success prints a final highlighted message.
func (r *Reporter) Success(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLine()
	r.ok.Fprintln(r.w, msg)
}
