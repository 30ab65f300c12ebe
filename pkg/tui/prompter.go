package tui

import (
	"context"

	"jupiterdash/pkg/wallet"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common"
)

type passphraseReply struct {
	passphrase string
	ok         bool
}

type passphraseRequest struct {
	account common.Address
	reply   chan passphraseReply
}

// Prompter asks for keystore passphrases through the running program. It
// satisfies wallet.Prompter.
type Prompter struct {
	requests chan passphraseRequest
}

func NewPrompter() *Prompter {
	return &Prompter{requests: make(chan passphraseRequest)}
}

// Passphrase blocks until the modal is submitted or dismissed. Dismissing it
// yields wallet.ErrUserRejected.
func (p *Prompter) Passphrase(ctx context.Context, account common.Address) (string, error) {
	req := passphraseRequest{account: account, reply: make(chan passphraseReply, 1)}
	select {
	case p.requests <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-req.reply:
		if !r.ok {
			return "", wallet.ErrUserRejected
		}
		return r.passphrase, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *Prompter) listen() tea.Cmd {
	return func() tea.Msg {
		return <-p.requests
	}
}

var _ wallet.Prompter = (*Prompter)(nil)
