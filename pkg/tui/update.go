package tui

import (
	"errors"
	"fmt"
	"time"

	"jupiterdash/pkg/app"
	"jupiterdash/pkg/format"
	"jupiterdash/pkg/models"
	"jupiterdash/pkg/qr"
	"jupiterdash/pkg/wallet"
	"jupiterdash/pkg/watcher"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case watcher.Event:
		cmds = append(cmds, listenForWatcher(m.sub))
		if snap, ok := msg.Data.(models.Snapshot); ok && msg.Type == watcher.EventSnapshotUpdated {
			m.snapshot = snap
			if snap.Status == models.StatusOK {
				m.lastUpdate = snap.LastUpdate
			}
			m.refreshQR()
		}

	case passphraseRequest:
		// The prompt takes every key, so nothing may cover it.
		m.showHelp = false
		m.showGas = false
		m.confirming = false
		m.prompt = &msg
		m.passInput.Reset()
		cmds = append(cmds, m.passInput.Focus())

	case connectResultMsg:
		m.busy = false
		if msg.err != nil {
			m.alert = connectAlert(msg.err)
			break
		}
		m.statusMessage = "Wallet connected: " + format.ShortAddress(msg.addr.Hex())
		cmds = append(cmds, clearStatusAfter(2*time.Second))

	case sendResultMsg:
		m.busy = false
		if msg.err != nil {
			m.alert = "Transfer failed: " + msg.err.Error()
			break
		}
		m.statusMessage = "Transfer submitted: " + format.TruncateString(msg.res.Hash, 20)
		cmds = append(cmds, clearStatusAfter(5*time.Second))

	case clearStatusMsg:
		m.statusMessage = ""

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.rejectPrompt()
		return m, tea.Quit
	}

	// Modals take every key while open.
	if m.prompt != nil {
		switch msg.String() {
		case "enter":
			m.prompt.reply <- passphraseReply{passphrase: m.passInput.Value(), ok: true}
			m.closePrompt()
			return m, m.prompter.listen()
		case "esc":
			m.rejectPrompt()
			return m, m.prompter.listen()
		}
		var cmd tea.Cmd
		m.passInput, cmd = m.passInput.Update(msg)
		return m, cmd
	}

	if m.alert != "" {
		switch msg.String() {
		case "enter", "esc", "q", " ":
			m.alert = ""
		}
		return m, nil
	}

	if m.confirming {
		switch msg.String() {
		case "y", "Y", "enter":
			m.confirming = false
			m.busy = true
			m.statusMessage = "Waiting for wallet…"
			return m, sendCmd(m.ctx, m.actions)
		case "n", "N", "esc", "q":
			m.confirming = false
		}
		return m, nil
	}

	if m.showHelp {
		switch msg.String() {
		case "?", "esc", "q":
			m.showHelp = false
		}
		return m, nil
	}

	if m.showGas {
		switch msg.String() {
		case "g", "esc", "q":
			m.showGas = false
		case "r":
			m.actions.Refresh()
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit

	case "?":
		m.showHelp = true

	case "g":
		m.showGas = true

	case "r":
		m.actions.Refresh()
		m.statusMessage = "Refreshing…"
		return m, clearStatusAfter(2 * time.Second)

	case "w":
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.statusMessage = "Waiting for wallet…"
		return m, connectCmd(m.ctx, m.actions)

	case "c":
		if _, err := m.actions.Copy(); err != nil {
			m.alert = copyAlert(err)
			return m, nil
		}
		m.statusMessage = "Address copied!"
		return m, clearStatusAfter(2 * time.Second)

	case "s":
		if m.busy {
			return m, nil
		}
		m.confirming = true
	}
	return m, nil
}

func (m *model) closePrompt() {
	m.prompt = nil
	m.passInput.Reset()
	m.passInput.Blur()
}

// rejectPrompt answers an open passphrase request with a rejection.
func (m *model) rejectPrompt() {
	if m.prompt == nil {
		return
	}
	m.prompt.reply <- passphraseReply{}
	m.closePrompt()
}

// refreshQR re-encodes the receive address when it changes.
func (m *model) refreshQR() {
	if m.snapshot.Address == m.qrAddress {
		return
	}
	m.qrAddress = m.snapshot.Address
	m.qrCode = ""
	if m.qrAddress == "" {
		return
	}
	code, err := qr.Terminal(m.qrAddress)
	if err != nil {
		m.statusMessage = fmt.Sprintf("QR unavailable: %v", err)
		return
	}
	m.qrCode = code
}

func connectAlert(err error) string {
	switch {
	case errors.Is(err, wallet.ErrWalletUnavailable):
		return "No wallet detected. Set wallet.mode in the config."
	case errors.Is(err, wallet.ErrUserRejected):
		return "Connect failed: request rejected"
	}
	return "Connect failed: " + err.Error()
}

func copyAlert(err error) string {
	switch {
	case errors.Is(err, wallet.ErrNotConnected):
		return "Wallet not connected"
	case errors.Is(err, app.ErrClipboardUnavailable):
		return "Clipboard unavailable"
	}
	return "Copy failed: " + err.Error()
}
