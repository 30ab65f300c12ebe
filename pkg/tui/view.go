package tui

import (
	"fmt"
	"strings"
	"time"

	"jupiterdash/pkg/format"
	"jupiterdash/pkg/models"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

func (m model) View() string {
	if m.prompt != nil {
		return m.place(m.viewPassphrase())
	}
	if m.showHelp {
		return m.viewHelp()
	}
	if m.showGas {
		return m.viewGasTracker()
	}

	body := m.viewDashboard()
	switch {
	case m.alert != "":
		body = m.viewAlert()
	case m.confirming:
		body = m.viewConfirm()
	}
	return m.place(body)
}

func (m model) place(content string) string {
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m model) viewDashboard() string {
	s := m.snapshot
	header := titleStyle.Render("Jupiter Dashboard")

	status := statusLine(s)
	if s.Status == models.StatusFetching || m.busy {
		status = m.spinner.View() + " " + status
	}
	if s.Status == models.StatusError {
		status = errStyle.Render(status)
	}

	rows := []string{
		status,
		"",
		row("Block", blockText(s)),
		row("Gas price", gasText(s)),
		row("Balance", balanceText(s)),
		row("Wallet", walletText(s)),
	}
	if !m.lastUpdate.IsZero() {
		rows = append(rows, subtleStyle.Render("Updated "+m.lastUpdate.Format(time.TimeOnly)))
	}
	left := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))

	var receive string
	if s.Connected && m.qrCode != "" {
		receive = boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center,
			tableHeaderStyle.Render("Receive"),
			s.Address,
			m.qrCode,
		))
	} else {
		receive = boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center,
			tableHeaderStyle.Render("Receive"),
			subtleStyle.Render("Not connected"),
		))
	}

	footer := subtleStyle.Render("w: connect • c: copy • r: refresh • s: send • g: gas • ?: help • q: quit")
	if m.statusMessage != "" {
		footer = infoStyle.Render(m.statusMessage) + "\n" + footer
	}

	return lipgloss.JoinVertical(lipgloss.Center,
		header,
		"",
		lipgloss.JoinHorizontal(lipgloss.Top, left, receive),
		"",
		footer,
	)
}

func row(label, value string) string {
	return subtleStyle.Render(fmt.Sprintf("%-10s", label)) + " " + value
}

func statusLine(s models.Snapshot) string {
	switch s.Status {
	case models.StatusFetching:
		return "Status: Fetching..."
	case models.StatusOK:
		return "Status: OK"
	case models.StatusError:
		return "Status: Error - " + s.StatusMessage
	}
	return "Status: Idle"
}

func blockText(s models.Snapshot) string {
	if s.BlockDisplay == "" {
		return "-"
	}
	return s.BlockDisplay
}

func gasText(s models.Snapshot) string {
	if s.GasPriceGwei == "" {
		return "-"
	}
	return s.GasPriceGwei + " Gwei"
}

func balanceText(s models.Snapshot) string {
	if s.Balance == "" {
		return "Connect wallet"
	}
	return s.Balance + " " + s.Symbol
}

func walletText(s models.Snapshot) string {
	if !s.Connected || s.Address == "" {
		return "Not connected"
	}
	return s.Address
}

func (m model) viewAlert() string {
	content := boxStyle.BorderForeground(lipgloss.Color("#FF0000")).Render(lipgloss.JoinVertical(lipgloss.Center,
		errStyle.Bold(true).Render("Alert"),
		"",
		m.alert,
		"",
		subtleStyle.Render("enter/esc: dismiss"),
	))
	return content
}

func (m model) viewConfirm() string {
	t := m.actions.Transfer()
	ether, _ := format.FormatEther(format.ToHex(t.Value))
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center,
		titleStyle.Render("Send transfer"),
		"",
		fmt.Sprintf("Send %s %s to %s?", ether, m.snapshot.Symbol, t.To.Hex()),
		"",
		subtleStyle.Render("y: confirm • n/esc: cancel"),
	))
}

func (m model) viewPassphrase() string {
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Unlock account"),
		"",
		m.prompt.account.Hex(),
		"",
		m.passInput.View(),
		"",
		subtleStyle.Render("enter: unlock • esc: reject"),
	))
}

func (m model) viewHelp() string {
	shortcuts := []string{
		"w: Connect Wallet",
		"c: Copy Address",
		"r: Refresh Data",
		"s: Send Fixed Transfer",
		"g: Gas Tracker",
		"?: Toggle Help",
		"q/esc: Quit",
	}

	header := titleStyle.Render("Help • jupiterdash " + Version)
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", strings.Join(shortcuts, "\n")))
	footer := subtleStyle.Render("Press '?' or 'esc' to close")

	return m.place(lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

func (m model) viewGasTracker() string {
	header := titleStyle.Render("Gas Tracker (Gwei)")

	targetBoxWidth := m.width - 4
	if targetBoxWidth < 0 {
		targetBoxWidth = 0
	}

	var history []float64
	for _, p := range m.watcher.GasHistory() {
		history = append(history, p.Value)
	}

	var graph, stats string
	if len(history) > 0 {
		low, avg, high := gasStats(history)
		stats = subtleStyle.Render(fmt.Sprintf("Low: %.2f • Avg: %.2f • High: %.2f", low, avg, high))

		graphWidth := targetBoxWidth - 14
		if graphWidth < 10 {
			graphWidth = 10
		}
		graphHeight := m.height - 14
		if graphHeight < 1 {
			graphHeight = 1
		}
		graph = asciigraph.Plot(history,
			asciigraph.Height(graphHeight),
			asciigraph.Width(graphWidth),
			asciigraph.Caption("Gas Price (Gwei)"),
		)
	} else {
		graph = "Not enough data to draw graph."
	}

	content := boxStyle.Width(targetBoxWidth).Align(lipgloss.Center).Render(lipgloss.JoinVertical(lipgloss.Center, header, "\n", stats, "\n", graph))
	footer := subtleStyle.Render("g/q/esc: back • r: refresh")

	return m.place(lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

func gasStats(values []float64) (low, avg, high float64) {
	low, high = values[0], values[0]
	sum := 0.0
	for _, v := range values {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
		sum += v
	}
	return low, sum / float64(len(values)), high
}
