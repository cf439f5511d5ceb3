package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/tfx/internal/repositories"
)

var (
	_ list.Item = failureItem{}
)

// failureItem wraps [repositories.Failure] to implement [list.Item].
type failureItem struct {
	failure repositories.Failure
}

func (i failureItem) FilterValue() string { return i.failure.Archive + " " + i.failure.Entry }
func (i failureItem) Title() string {
	if i.failure.Entry == "" {
		return i.failure.Archive
	}
	return i.failure.Entry
}
func (i failureItem) Description() string {
	desc := styles.As(i.failure.State, stateColor(i.failure.State))
	if i.failure.Entry != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.failure.Archive)
	}
	if i.failure.Reason != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.failure.Reason)
	}
	return desc
}

func failureItems(failures []repositories.Failure) []list.Item {
	items := make([]list.Item, len(failures))
	for i, f := range failures {
		items[i] = failureItem{failure: f}
	}
	return items
}
