package tui

import (
	"context"
	"fmt"

	"jupiterdash/pkg/app"
	"jupiterdash/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
)

// Start runs the dashboard until the user quits or ctx is cancelled.
func Start(ctx context.Context, actions *app.Actions, w *watcher.Watcher, prompter *Prompter, version string) error {
	Version = version
	m := initialModel(ctx, actions, w, prompter)
	defer w.Unsubscribe(m.sub)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("alas, there's been an error: %w", err)
	}
	return nil
}
