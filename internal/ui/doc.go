// Package ui implements `tfx watch`, a terminal monitor for the pipeline scheduler built on bubbletea's Elm architecture.
//
// The monitor has two views:
//  1. [MonitorView] : per-stage budgets and in-flight counts, state counts, live progress bars
//  2. [FailuresView] : failed and parked archives and entries
//
// The [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through the channel behind a [tasks.ChannelSink]; counts are reloaded on a fixed refresh interval.
//
// Stage limits are adjusted live with +/-, which calls [tasks.Scheduler.SetStageLimit]. A limit of 0 pauses the stage,
// space pauses and resumes the whole loop. Keyboard help is displayed via charmbracelet/bubbles/help.
package ui
