package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the full-screen browser and blocks until the user quits or
// ctx is cancelled.
func Run(opts Options) error {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Scan == nil {
		return errors.New("tui: no scan function")
	}

	program := tea.NewProgram(NewBrowserModel(opts),
		tea.WithAltScreen(),
		tea.WithContext(opts.Context),
	)
	if _, err := program.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && opts.Context.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
