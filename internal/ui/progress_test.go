package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"vcdmerge/internal/pipeline"
)

func newModel(files ...string) *progressModel {
	return NewProgressModel("merging", files, nil).(*progressModel)
}

func TestApplyEventTracksBytes(t *testing.T) {
	m := newModel("a.vcd", "b.vcd")
	m.applyEvent(pipeline.Event{File: "a.vcd", Stage: pipeline.StageHeaders, Status: pipeline.StatusQueued, Total: 100})
	m.applyEvent(pipeline.Event{File: "b.vcd", Stage: pipeline.StageHeaders, Status: pipeline.StatusQueued, Total: 300})
	m.applyEvent(pipeline.Event{File: "a.vcd", Stage: pipeline.StageMerge, Status: pipeline.StatusWorking, Done: 100, Total: 100})
	m.applyEvent(pipeline.Event{File: "b.vcd", Stage: pipeline.StageMerge, Status: pipeline.StatusWorking, Done: 100, Total: 300})

	if got := m.percent(); got != 0.5 {
		t.Errorf("percent = %v, want 0.5", got)
	}
	if m.items[0].status != "merging" {
		t.Errorf("status = %q", m.items[0].status)
	}

	// progress never goes backwards
	m.applyEvent(pipeline.Event{File: "b.vcd", Stage: pipeline.StageMerge, Status: pipeline.StatusWorking, Done: 50, Total: 300})
	if m.items[1].done != 100 {
		t.Errorf("done regressed to %d", m.items[1].done)
	}
}

func TestPercentByStageWithoutSizes(t *testing.T) {
	m := newModel("s3://bucket/a.vcd", "b.vcd")
	m.applyEvent(pipeline.Event{File: "b.vcd", Stage: pipeline.StageMerge, Status: pipeline.StatusDone, Total: -1})
	if got := m.percent(); got != 0.5 {
		t.Errorf("percent = %v, want 0.5", got)
	}
}

func TestViewShowsFailure(t *testing.T) {
	m := newModel("a.vcd")
	m.applyEvent(pipeline.Event{Stage: pipeline.StageMerge, Status: pipeline.StatusError})
	m.done = true
	view := m.View()
	if !strings.Contains(view, "failed: merging") {
		t.Errorf("view lacks failure header:\n%s", view)
	}
	if !strings.Contains(view, "a.vcd") {
		t.Errorf("view lacks file name:\n%s", view)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{-1: "?", 0: "0 B", 1023: "1023 B", 1536: "1.5 KiB", 5 << 20: "5.0 MiB"}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 6); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abcdef", 2); got != "ab" {
		t.Errorf("truncate = %q", got)
	}
}

func TestInterruptLeavesModelUnfinished(t *testing.T) {
	m := newModel("a.vcd")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c must quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c must return tea.Quit")
	}
	if m.Finished() {
		t.Error("an interrupted model is not finished")
	}

	m.Update(doneMsg{})
	if !m.Finished() {
		t.Error("model must be finished after the event stream ends")
	}
}
