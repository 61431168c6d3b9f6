package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/tradedesk/minibroker/pkg/dashboard"
)

// Run starts the dashboard program and blocks until it exits or ctx is
// canceled.
func Run(ctx context.Context, ctrl *dashboard.Controller, view *View, logger *logrus.Logger) error {
	model := NewModel(ctrl, view, logger)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	view.Attach(program)

	_, err := program.Run()
	return err
}
