package tui

import (
	"context"
	"time"

	"jupiterdash/pkg/app"
	"jupiterdash/pkg/models"
	"jupiterdash/pkg/watcher"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
)

// Version is set by Start()
var Version = "dev"

// --- Messages ---

type clearStatusMsg struct{}

type connectResultMsg struct {
	addr common.Address
	err  error
}

type sendResultMsg struct {
	res models.TransferResult
	err error
}

// --- Model ---

type model struct {
	ctx      context.Context
	actions  *app.Actions
	watcher  *watcher.Watcher
	sub      watcher.Subscriber
	prompter *Prompter

	snapshot   models.Snapshot
	qrAddress  string
	qrCode     string
	width      int
	height     int
	spinner    spinner.Model
	busy       bool
	lastUpdate time.Time

	statusMessage string
	alert         string
	confirming    bool
	showHelp      bool
	showGas       bool

	prompt    *passphraseRequest
	passInput textinput.Model
}

func initialModel(ctx context.Context, actions *app.Actions, w *watcher.Watcher, prompter *Prompter) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textinput.New()
	ti.Placeholder = "passphrase"
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.Width = 40

	return model{
		ctx:       ctx,
		actions:   actions,
		watcher:   w,
		sub:       w.Subscribe(),
		prompter:  prompter,
		snapshot:  w.Snapshot(),
		spinner:   s,
		passInput: ti,
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{listenForWatcher(m.sub), m.spinner.Tick}
	if m.prompter != nil {
		cmds = append(cmds, m.prompter.listen())
	}
	return tea.Batch(cmds...)
}

func listenForWatcher(sub watcher.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return nil
		}
		return ev
	}
}

func connectCmd(ctx context.Context, a *app.Actions) tea.Cmd {
	return func() tea.Msg {
		addr, err := a.Connect(ctx)
		return connectResultMsg{addr: addr, err: err}
	}
}

func sendCmd(ctx context.Context, a *app.Actions) tea.Cmd {
	return func() tea.Msg {
		res, err := a.Send(ctx)
		return sendResultMsg{res: res, err: err}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return clearStatusMsg{} })
}
