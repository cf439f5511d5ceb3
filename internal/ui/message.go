package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tfx/internal/repositories"
	"github.com/desertthunder/tfx/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgProgressClosed
	MsgReportLoaded
	MsgRefresh
	MsgPipelineToggled
)

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// progressClosedMsg is the constructor for [MsgProgressClosed]
func progressClosedMsg() Msg {
	return Msg{kind: MsgProgressClosed}
}

// reportLoadedMsg is the constructor for [MsgReportLoaded]
func reportLoadedMsg(report *repositories.StatusReport, err error) Msg {
	return Msg{
		kind: MsgReportLoaded,
		data: struct {
			report *repositories.StatusReport
			err    error
		}{report, err},
	}
}

// refreshMsg is the constructor for [MsgRefresh]
func refreshMsg() Msg {
	return Msg{kind: MsgRefresh}
}

// pipelineToggledMsg is the constructor for [MsgPipelineToggled]
func pipelineToggledMsg(err error) Msg {
	return Msg{kind: MsgPipelineToggled, data: err}
}
