package tui

import (
	"gmerge/internal/merge"
	"gmerge/internal/model"
)

// Async message types for Bubble Tea commands.

type progressMsg model.Progress

type runDoneMsg struct {
	result *merge.Result
}

type statusMsg string
