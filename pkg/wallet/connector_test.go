package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	args := m.Called(method, params)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

const testAddr = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

func TestConnect_NoProvider(t *testing.T) {
	c := NewConnector(nil, DefaultTransfer, zerolog.Nop())

	_, err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrWalletUnavailable)

	_, ok := c.Address()
	assert.False(t, ok)
}

func TestConnect_Success(t *testing.T) {
	p := new(MockProvider)
	p.On("Request", MethodRequestAccounts, mock.Anything).
		Return(json.RawMessage(`["`+testAddr+`","0x1111111111111111111111111111111111111111"]`), nil)
	c := NewConnector(p, DefaultTransfer, zerolog.Nop())

	addr, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddr), addr)

	got, ok := c.Address()
	assert.True(t, ok)
	assert.Equal(t, addr, got)
	p.AssertExpectations(t)
}

func TestConnect_Rejected(t *testing.T) {
	p := new(MockProvider)
	p.On("Request", MethodRequestAccounts, mock.Anything).
		Return(nil, &ProviderError{Code: CodeUserRejected, Message: "User denied account authorization"})
	c := NewConnector(p, DefaultTransfer, zerolog.Nop())

	_, err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrUserRejected)
	assert.Contains(t, err.Error(), "User denied")

	_, ok := c.Address()
	assert.False(t, ok)
}

func TestConnect_NoAccounts(t *testing.T) {
	p := new(MockProvider)
	p.On("Request", MethodRequestAccounts, mock.Anything).Return(json.RawMessage(`[]`), nil)
	c := NewConnector(p, DefaultTransfer, zerolog.Nop())

	_, err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrWalletUnavailable)
}

func TestConnect_KeepsAddressAfterLaterFailure(t *testing.T) {
	p := new(MockProvider)
	p.On("Request", MethodRequestAccounts, mock.Anything).Return(json.RawMessage(`["`+testAddr+`"]`), nil).Once()
	p.On("Request", MethodRequestAccounts, mock.Anything).Return(nil, errors.New("boom")).Once()
	c := NewConnector(p, DefaultTransfer, zerolog.Nop())

	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	_, err = c.Connect(context.Background())
	require.Error(t, err)

	got, ok := c.Address()
	assert.True(t, ok)
	assert.Equal(t, common.HexToAddress(testAddr), got)
}

func TestSendFixedTransfer(t *testing.T) {
	p := new(MockProvider)
	p.On("Request", MethodRequestAccounts, mock.Anything).Return(json.RawMessage(`["`+testAddr+`"]`), nil).Once()

	var sent TxRequest
	p.On("Request", MethodSendTransaction, mock.Anything).Run(func(args mock.Arguments) {
		params := args.Get(1).([]interface{})
		sent = params[0].(TxRequest)
	}).Return(json.RawMessage(`"0x00000000000000000000000000000000000000000000000000000000000000aa"`), nil)

	c := NewConnector(p, DefaultTransfer, zerolog.Nop())
	hash, err := c.SendFixedTransfer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xaa"), hash)

	assert.Equal(t, common.HexToAddress(testAddr), sent.From)
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), sent.To)
	assert.Equal(t, "0x2386f26fc10000", sent.Value.String())
	p.AssertExpectations(t)
}

func TestSendFixedTransfer_RejectionIsReturned(t *testing.T) {
	p := new(MockProvider)
	p.On("Request", MethodRequestAccounts, mock.Anything).Return(json.RawMessage(`["`+testAddr+`"]`), nil)
	p.On("Request", MethodSendTransaction, mock.Anything).
		Return(nil, &ProviderError{Code: CodeUserRejected, Message: "User denied transaction signature"})

	c := NewConnector(p, DefaultTransfer, zerolog.Nop())
	_, err := c.Connect(context.Background())
	require.NoError(t, err)

	_, err = c.SendFixedTransfer(context.Background())
	assert.ErrorIs(t, err, ErrUserRejected)
}

func TestSendFixedTransfer_NoProvider(t *testing.T) {
	c := NewConnector(nil, DefaultTransfer, zerolog.Nop())
	_, err := c.SendFixedTransfer(context.Background())
	assert.ErrorIs(t, err, ErrWalletUnavailable)
}
