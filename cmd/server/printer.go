package main

import (
	"fmt"
	"io"

	"github.com/deepresearch/research-agent/internal/progress"
	"github.com/deepresearch/research-agent/pkg/models"
)

// printer renders progress changes as terminal lines.
type printer struct {
	w       io.Writer
	tracker *progress.Tracker

	stage     string
	announced map[string]bool
	settled   map[string]bool
	lastError string
}

func newPrinter(w io.Writer, t progress.Tables) *printer {
	return &printer{
		w:         w,
		tracker:   progress.NewTracker(t),
		announced: make(map[string]bool),
		settled:   make(map[string]bool),
	}
}

// Add feeds one frame and prints what changed. It always asks for more.
func (p *printer) Add(ev models.Event) bool {
	state := p.tracker.Add(ev)

	if ev.Type == models.EventError && ev.Error != nil {
		p.lastError = ev.Error.Message
		fmt.Fprintf(p.w, "error: %s\n", ev.Error.Message)
	}

	if state.Stage != p.stage && !ev.IsDone() {
		p.stage = state.Stage
		fmt.Fprintf(p.w, "» %s\n", state.Stage)
	}

	for _, call := range state.ToolCalls {
		if !p.announced[call.ID] {
			p.announced[call.ID] = true
			fmt.Fprintf(p.w, "  • %s  %s\n", call.Name, progress.InputPreview(call.Input))
		}
		if call.Completed && !p.settled[call.ID] {
			p.settled[call.ID] = true
			mark := "✓"
			if call.IsError {
				mark = "✗"
			}
			fmt.Fprintf(p.w, "    %s %s\n", mark, firstLine(progress.ResultPreview(call.Result)))
		}
	}
	return true
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i] + " …"
		}
	}
	return s
}
