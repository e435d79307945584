package headless

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/turnwire/turnwire/pkg/types"
)

// Printer renders a turn's envelopes to a writer as they arrive and the
// final result when the turn settles. Envelope may be called from the
// transport goroutine; all writes go through one mutex.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	format OutputFormat
	quiet  bool

	printedText bool
}

// NewPrinter creates a printer for the run's output format.
func NewPrinter(w io.Writer, format OutputFormat, quiet bool) *Printer {
	return &Printer{w: w, format: format, quiet: quiet}
}

// Envelope renders one stream event. JSON mode stays silent here; the whole
// run is reported by Summary.
func (p *Printer) Envelope(env types.Envelope) {
	if p.format != OutputText {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev := env.Event.(type) {
	case *types.TextEvent:
		fmt.Fprint(p.w, ev.Content)
		p.printedText = true
	case *types.ToolStartEvent:
		if !p.quiet {
			p.breakLineLocked()
			fmt.Fprintf(p.w, "[tool] %s running…\n", ev.ToolName)
		}
	case *types.ToolCompleteEvent:
		if !p.quiet {
			p.breakLineLocked()
			status := "done"
			if ev.IsError {
				status = "failed"
			}
			fmt.Fprintf(p.w, "[tool] %s %s (%dms)\n", ev.ToolID, status, ev.DurationMs)
		}
	}
}

// breakLineLocked ends a partial text line before a notice.
func (p *Printer) breakLineLocked() {
	if p.printedText {
		fmt.Fprintln(p.w)
		p.printedText = false
	}
}

// Summary renders the final result: a human-readable footer in text mode,
// the whole result object in JSON mode.
func (p *Printer) Summary(res *Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.format == OutputJSON {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	p.breakLineLocked()

	if res.Error != "" {
		fmt.Fprintf(p.w, "\nerror: %s\n", res.Error)
	}

	fmt.Fprintf(p.w, "\n── %s in %dms", res.Status, res.DurationMs)
	if res.FirstTokenMs > 0 {
		fmt.Fprintf(p.w, " · first token %dms", res.FirstTokenMs)
	}
	if res.TotalTokens != nil {
		fmt.Fprintf(p.w, " · %d tokens", *res.TotalTokens)
	}
	if res.CostUSD != nil {
		fmt.Fprintf(p.w, " · $%.6f", *res.CostUSD)
	}
	fmt.Fprintln(p.w)

	if !p.quiet && len(res.Tools) > 0 {
		tools := append([]ToolSummary(nil), res.Tools...)
		sort.Slice(tools, func(i, j int) bool { return tools[i].Tool < tools[j].Tool })
		for _, t := range tools {
			fmt.Fprintf(p.w, "   tool %s: %s (%dms)\n", t.Tool, t.Status, t.DurationMs)
		}
	}
	return nil
}
