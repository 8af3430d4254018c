package console

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// bindProgram routes row changes of every view to p. Sends run on their own
// goroutine since a refresh may finish inside Update.
func bindProgram(s *Session, p teaProgram) {
	s.SetNotifier(func() { go p.Send(rowsMsg{}) })
}

// Run shows the console until the user quits or ctx is cancelled. Views are
// loaded before the first frame; load failures are shown per tab.
func Run(ctx context.Context, s *Session) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newModel(ctx, s), tea.WithAltScreen(), tea.WithContext(ctx))
	bindProgram(s, p)
	_ = s.Mount(ctx)
	defer s.Unmount()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
