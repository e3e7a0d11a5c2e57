package wallet

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"eduverse-client-go/internal/platform/errors"
	"eduverse-client-go/internal/platform/observability"
)

// TopicState is published with the new state's name on every change.
const TopicState = "wallet:state"

// DefaultPrompt is shown before the agent's own approval prompt.
const DefaultPrompt = "Connect your wallet to mint resources on the ledger?"

// Logger is the logging contract the connector needs.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Publisher receives state change notifications.
type Publisher interface {
	Publish(topic string, args ...any)
}

// Connection is an authorized account and its signing handle.
type Connection struct {
	Address common.Address
	Signer  Signer
}

// Options configures a Connector.
type Options struct {
	Agent     Agent
	Confirmer Confirmer
	Prompt    string
	Logger    Logger
	Publisher Publisher
}

// Connector drives the state machine against a real agent.
type Connector struct {
	agent     Agent
	confirmer Confirmer
	prompt    string
	logger    Logger
	publisher Publisher

	run   sync.Mutex
	mu    sync.RWMutex
	state State
}

// NewConnector builds a Connector. A nil Agent means no agent is present.
func NewConnector(opts Options) *Connector {
	prompt := opts.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}
	confirmer := opts.Confirmer
	if confirmer == nil {
		confirmer = StaticConfirmer(false)
	}
	return &Connector{
		agent:     opts.Agent,
		confirmer: confirmer,
		prompt:    prompt,
		logger:    opts.Logger,
		publisher: opts.Publisher,
		state:     Disconnected{},
	}
}

// State returns the current state.
func (c *Connector) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// EnsureConnected returns a connection, prompting the user when no account is
// authorized yet. Failures carry one of the wallet_* error kinds.
func (c *Connector) EnsureConnected(ctx context.Context) (*Connection, error) {
	return c.drive(ctx, Interactive)
}

// RestoreConnected returns a connection only if an account is already
// authorized. It never prompts; nil, nil means there is nothing to restore.
func (c *Connector) RestoreConnected(ctx context.Context) (*Connection, error) {
	conn, err := c.drive(ctx, Silent)
	if errors.IsKind(err, errors.KindWalletUnavailable) {
		return nil, nil
	}
	return conn, err
}

func (c *Connector) drive(ctx context.Context, mode Mode) (conn *Connection, err error) {
	c.run.Lock()
	defer c.run.Unlock()

	ctx, end := observability.StartSpan(ctx, "wallet", "connect")
	defer func() { end(err) }()

	present := c.agent != nil && c.agent.Available()
	event := Event(AgentProbed{Present: present})

	for {
		next, effect, terr := Transition(c.State(), event, mode)
		if terr != nil {
			return nil, errors.Wrap(errors.KindWalletConnectionFailed, "wallet.connect", "connector out of sequence", terr)
		}
		c.setState(next)

		switch effect.Kind {
		case EffectQueryAccounts:
			accounts, qerr := c.agent.Accounts(ctx)
			if qerr != nil {
				event = AgentFailed{Reason: Classify(qerr), Err: qerr}
			} else {
				event = AccountsListed{Accounts: accounts}
			}
		case EffectConfirm:
			accepted, cerr := c.confirmer.Confirm(ctx, c.prompt)
			if cerr != nil {
				c.logf("confirmation failed: %v", cerr)
			}
			event = PromptAnswered{Accepted: accepted && cerr == nil}
		case EffectRequestAccounts:
			if _, rerr := c.agent.RequestAccounts(ctx); rerr != nil {
				event = AgentFailed{Reason: Classify(rerr), Err: rerr}
			} else {
				event = ApprovalGranted{}
			}
		case EffectDone:
			if connected, ok := next.(Connected); ok {
				return &Connection{Address: connected.Address, Signer: c.agent.Signer(connected.Address)}, nil
			}
			return nil, effect.Err
		default:
			return nil, errors.New(errors.KindWalletConnectionFailed, "wallet.connect", "connector stalled")
		}
	}
}

func (c *Connector) setState(next State) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()

	if prev.Name() == next.Name() {
		return
	}
	c.logf("state %s -> %s", prev.Name(), next.Name())
	if c.publisher != nil {
		c.publisher.Publish(TopicState, next.Name())
	}
}

func (c *Connector) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(format, args...)
	}
}
