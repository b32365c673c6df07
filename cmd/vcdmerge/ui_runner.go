package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"vcdmerge/internal/pipeline"
	"vcdmerge/internal/ui"
)

type mergeOutcome struct {
	result *pipeline.Result
	err    error
}

func runMergeWithUI(ctx context.Context, title string, files []string, req *pipeline.Request) (*pipeline.Result, error) {
	if req == nil {
		return nil, fmt.Errorf("missing merge request")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := make(chan pipeline.Event, 256)
	outcomeCh := make(chan mergeOutcome, 1)

	go func() {
		reqCopy := *req
		reqCopy.Progress = pipeline.ChannelSink{Ch: events}
		res, err := pipeline.Merge(ctx, &reqCopy)
		outcomeCh <- mergeOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, files, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr), tea.WithContext(ctx))
	final, uiErr := program.Run()
	if f, ok := final.(interface{ Finished() bool }); uiErr != nil || !ok || !f.Finished() {
		// interrupted from the keyboard or the display is gone
		if uiErr == nil {
			cancel()
		}
		go func() {
			for range events {
			}
		}()
	}
	outcome := <-outcomeCh
	if outcome.err != nil {
		return nil, outcome.err
	}
	if uiErr != nil {
		fmt.Fprintf(os.Stderr, "vcdmerge: progress display failed: %v\n", uiErr)
	}
	return outcome.result, nil
}
