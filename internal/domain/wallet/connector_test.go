package wallet

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eduverse-client-go/internal/platform/errors"
	"eduverse-client-go/internal/platform/logging"
)

type MockAgent struct {
	mock.Mock
}

func (m *MockAgent) Available() bool {
	return m.Called().Bool(0)
}

func (m *MockAgent) Accounts(ctx context.Context) ([]common.Address, error) {
	args := m.Called(ctx)
	accounts, _ := args.Get(0).([]common.Address)
	return accounts, args.Error(1)
}

func (m *MockAgent) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	args := m.Called(ctx)
	accounts, _ := args.Get(0).([]common.Address)
	return accounts, args.Error(1)
}

func (m *MockAgent) Signer(account common.Address) Signer {
	return m.Called(account).Get(0).(Signer)
}

type MockConfirmer struct {
	mock.Mock
}

func (m *MockConfirmer) Confirm(ctx context.Context, message string) (bool, error) {
	args := m.Called(ctx, message)
	return args.Bool(0), args.Error(1)
}

type nopSigner struct{}

func (nopSigner) SendTransaction(context.Context, TxRequest) (common.Hash, error) {
	return common.Hash{}, nil
}

type codedError struct {
	code int
}

func (e codedError) Error() string  { return "agent error" }
func (e codedError) ErrorCode() int { return e.code }

type statePublisher struct {
	mu     sync.Mutex
	states []string
}

func (p *statePublisher) Publish(topic string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, args[0].(string))
}

func newConnector(agent Agent, confirmer Confirmer, publisher Publisher) *Connector {
	return NewConnector(Options{
		Agent:     agent,
		Confirmer: confirmer,
		Logger:    logging.Nop(),
		Publisher: publisher,
	})
}

func TestEnsureConnected_NoAgentMakesNoCalls(t *testing.T) {
	agent := new(MockAgent)
	agent.On("Available").Return(false)
	confirmer := new(MockConfirmer)

	conn, err := newConnector(agent, confirmer, nil).EnsureConnected(context.Background())
	assert.Nil(t, conn)
	assert.True(t, errors.IsKind(err, errors.KindWalletUnavailable))

	agent.AssertNotCalled(t, "Accounts", mock.Anything)
	agent.AssertNotCalled(t, "RequestAccounts", mock.Anything)
	confirmer.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything)
}

func TestEnsureConnected_NilAgent(t *testing.T) {
	c := NewConnector(Options{})
	conn, err := c.EnsureConnected(context.Background())
	assert.Nil(t, conn)
	assert.True(t, errors.IsKind(err, errors.KindWalletUnavailable))
	assert.Equal(t, NoAgent{}, c.State())
}

func TestEnsureConnected_AuthorizedAccountSkipsPrompt(t *testing.T) {
	agent := new(MockAgent)
	agent.On("Available").Return(true)
	agent.On("Accounts", mock.Anything).Return([]common.Address{alice}, nil).Once()
	agent.On("Signer", alice).Return(nopSigner{})
	confirmer := new(MockConfirmer)

	c := newConnector(agent, confirmer, nil)
	conn, err := c.EnsureConnected(context.Background())
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, alice, conn.Address)
	assert.Equal(t, Connected{Address: alice}, c.State())

	agent.AssertNotCalled(t, "RequestAccounts", mock.Anything)
	confirmer.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything)
	agent.AssertExpectations(t)
}

func TestEnsureConnected_PromptDeclined(t *testing.T) {
	agent := new(MockAgent)
	agent.On("Available").Return(true)
	agent.On("Accounts", mock.Anything).Return([]common.Address{}, nil)
	confirmer := new(MockConfirmer)
	confirmer.On("Confirm", mock.Anything, DefaultPrompt).Return(false, nil)

	c := newConnector(agent, confirmer, nil)
	conn, err := c.EnsureConnected(context.Background())
	assert.Nil(t, conn)
	assert.True(t, errors.IsKind(err, errors.KindWalletRejected))
	assert.Equal(t, Disconnected{}, c.State())
	agent.AssertNotCalled(t, "RequestAccounts", mock.Anything)
}

func TestEnsureConnected_ApprovalFlow(t *testing.T) {
	agent := new(MockAgent)
	agent.On("Available").Return(true)
	agent.On("Accounts", mock.Anything).Return([]common.Address{}, nil).Once()
	agent.On("RequestAccounts", mock.Anything).Return([]common.Address{alice}, nil).Once()
	agent.On("Accounts", mock.Anything).Return([]common.Address{alice}, nil).Once()
	agent.On("Signer", alice).Return(nopSigner{})
	confirmer := new(MockConfirmer)
	confirmer.On("Confirm", mock.Anything, mock.Anything).Return(true, nil)
	publisher := &statePublisher{}

	conn, err := newConnector(agent, confirmer, publisher).EnsureConnected(context.Background())
	require.NoError(t, err)
	assert.Equal(t, alice, conn.Address)
	assert.Equal(t, []string{"awaiting_approval", "connected"}, publisher.states)
	agent.AssertExpectations(t)
}

func TestEnsureConnected_EmptyAfterApproval(t *testing.T) {
	agent := new(MockAgent)
	agent.On("Available").Return(true)
	agent.On("Accounts", mock.Anything).Return([]common.Address{}, nil).Twice()
	agent.On("RequestAccounts", mock.Anything).Return([]common.Address{}, nil).Once()
	confirmer := new(MockConfirmer)
	confirmer.On("Confirm", mock.Anything, mock.Anything).Return(true, nil)

	conn, err := newConnector(agent, confirmer, nil).EnsureConnected(context.Background())
	assert.Nil(t, conn)
	assert.True(t, errors.IsKind(err, errors.KindWalletConnectionFailed))
}

func TestEnsureConnected_AgentRejectionCodes(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		kind  errors.Kind
		state State
	}{
		{name: "user declined", err: codedError{code: CodeUserRejected}, kind: errors.KindWalletRejected, state: Rejected{}},
		{name: "already pending", err: codedError{code: CodeRequestPending}, kind: errors.KindWalletRequestPending, state: AlreadyPending{}},
		{name: "other code", err: codedError{code: -32603}, kind: errors.KindWalletConnectionFailed, state: Disconnected{}},
		{name: "plain error", err: stderrors.New("socket closed"), kind: errors.KindWalletConnectionFailed, state: Disconnected{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := new(MockAgent)
			agent.On("Available").Return(true)
			agent.On("Accounts", mock.Anything).Return([]common.Address{}, nil)
			agent.On("RequestAccounts", mock.Anything).Return(nil, tt.err)

			c := newConnector(agent, StaticConfirmer(true), nil)
			conn, err := c.EnsureConnected(context.Background())
			assert.Nil(t, conn)
			assert.True(t, errors.IsKind(err, tt.kind), "got %v", err)
			assert.True(t, errors.Retryable(err))
			assert.Equal(t, tt.state, c.State())
		})
	}
}

func TestRestoreConnected_NeverPrompts(t *testing.T) {
	agent := new(MockAgent)
	agent.On("Available").Return(true)
	agent.On("Accounts", mock.Anything).Return([]common.Address{}, nil)
	confirmer := new(MockConfirmer)
	publisher := &statePublisher{}

	c := newConnector(agent, confirmer, publisher)
	conn, err := c.RestoreConnected(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, conn)
	assert.Equal(t, Disconnected{}, c.State())
	assert.NotContains(t, publisher.states, "awaiting_approval")
	agent.AssertNotCalled(t, "RequestAccounts", mock.Anything)
	confirmer.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything)
}

func TestRestoreConnected_Authorized(t *testing.T) {
	agent := new(MockAgent)
	agent.On("Available").Return(true)
	agent.On("Accounts", mock.Anything).Return([]common.Address{alice}, nil)
	agent.On("Signer", alice).Return(nopSigner{})

	conn, err := newConnector(agent, nil, nil).RestoreConnected(context.Background())
	require.NoError(t, err)
	assert.Equal(t, alice, conn.Address)
}

func TestRestoreConnected_NoAgentIsNotAnError(t *testing.T) {
	conn, err := NewConnector(Options{}).RestoreConnected(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, conn)
}

func TestPromptConfirmer(t *testing.T) {
	var out strings.Builder
	yes, err := PromptConfirmer{In: strings.NewReader("Yes\n"), Out: &out}.Confirm(context.Background(), "Connect?")
	require.NoError(t, err)
	assert.True(t, yes)
	assert.Equal(t, "Connect? [y/N]: ", out.String())

	no, err := PromptConfirmer{In: strings.NewReader("")}.Confirm(context.Background(), "Connect?")
	assert.Error(t, err)
	assert.False(t, no)

	no, err = PromptConfirmer{In: strings.NewReader("n")}.Confirm(context.Background(), "Connect?")
	require.NoError(t, err)
	assert.False(t, no)
}
