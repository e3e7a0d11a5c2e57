package wallet

import (
	stderrors "errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"eduverse-client-go/internal/platform/errors"
)

// ErrIllegalTransition is returned for an event the current state does not accept.
var ErrIllegalTransition = stderrors.New("illegal wallet state transition")

// State is one of NoAgent, Disconnected, AwaitingApproval, Connected, Rejected, AlreadyPending.
type State interface {
	Name() string
	isState()
}

type (
	NoAgent          struct{}
	Disconnected     struct{}
	AwaitingApproval struct{}
	Connected        struct{ Address common.Address }
	Rejected         struct{}
	AlreadyPending   struct{}
)

func (NoAgent) Name() string          { return "no_agent" }
func (Disconnected) Name() string     { return "disconnected" }
func (AwaitingApproval) Name() string { return "awaiting_approval" }
func (Connected) Name() string        { return "connected" }
func (Rejected) Name() string         { return "rejected" }
func (AlreadyPending) Name() string   { return "already_pending" }

func (NoAgent) isState()          {}
func (Disconnected) isState()     {}
func (AwaitingApproval) isState() {}
func (Connected) isState()        {}
func (Rejected) isState()         {}
func (AlreadyPending) isState()   {}

// Event is an observation fed into the machine.
type Event interface {
	isEvent()
}

// Reason classifies an agent failure.
type Reason int

const (
	ReasonOther Reason = iota
	ReasonDeclined
	ReasonAlreadyPending
)

type (
	// AgentProbed reports whether a signing agent exists in the environment.
	AgentProbed struct{ Present bool }
	// AccountsListed carries the result of an account query.
	AccountsListed struct{ Accounts []common.Address }
	// PromptAnswered is the user's answer to the app-level confirmation.
	PromptAnswered struct{ Accepted bool }
	// ApprovalGranted means the agent accepted the account request.
	ApprovalGranted struct{}
	// AgentFailed is any agent call failure, classified by Reason.
	AgentFailed struct {
		Reason Reason
		Err    error
	}
)

func (AgentProbed) isEvent()     {}
func (AccountsListed) isEvent()  {}
func (PromptAnswered) isEvent()  {}
func (ApprovalGranted) isEvent() {}
func (AgentFailed) isEvent()     {}

// Mode selects whether the machine may prompt.
type Mode int

const (
	// Interactive may confirm with the user and request agent approval.
	Interactive Mode = iota
	// Silent only reuses an existing authorization.
	Silent
)

// EffectKind is the action the driver performs after a transition.
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectQueryAccounts
	EffectConfirm
	EffectRequestAccounts
	EffectDone
)

func (k EffectKind) String() string {
	switch k {
	case EffectQueryAccounts:
		return "query_accounts"
	case EffectConfirm:
		return "confirm"
	case EffectRequestAccounts:
		return "request_accounts"
	case EffectDone:
		return "done"
	default:
		return "none"
	}
}

// Effect tells the driver what to do next. Err is set on failing EffectDone.
type Effect struct {
	Kind EffectKind
	Err  error
}

// Transition is the pure transition function of the connector.
func Transition(current State, event Event, mode Mode) (State, Effect, error) {
	if probe, ok := event.(AgentProbed); ok {
		if _, busy := current.(AwaitingApproval); busy {
			return current, Effect{}, illegal(current, event)
		}
		if !probe.Present {
			return NoAgent{}, done(errors.New(errors.KindWalletUnavailable, "wallet.connect", "no signing agent available")), nil
		}
		return Disconnected{}, Effect{Kind: EffectQueryAccounts}, nil
	}

	switch current.(type) {
	case Disconnected:
		switch e := event.(type) {
		case AccountsListed:
			if len(e.Accounts) > 0 {
				return Connected{Address: e.Accounts[0]}, done(nil), nil
			}
			if mode == Silent {
				return Disconnected{}, done(nil), nil
			}
			return Disconnected{}, Effect{Kind: EffectConfirm}, nil
		case PromptAnswered:
			if mode == Silent {
				return current, Effect{}, illegal(current, event)
			}
			if !e.Accepted {
				return Disconnected{}, done(errors.New(errors.KindWalletRejected, "wallet.connect", "connection declined")), nil
			}
			return AwaitingApproval{}, Effect{Kind: EffectRequestAccounts}, nil
		case AgentFailed:
			return Disconnected{}, done(failure(errors.KindWalletConnectionFailed, "signing agent failed", e.Err)), nil
		}

	case AwaitingApproval:
		switch e := event.(type) {
		case ApprovalGranted:
			return AwaitingApproval{}, Effect{Kind: EffectQueryAccounts}, nil
		case AccountsListed:
			if len(e.Accounts) == 0 {
				return Disconnected{}, done(errors.New(errors.KindWalletConnectionFailed, "wallet.connect", "no account available after approval")), nil
			}
			return Connected{Address: e.Accounts[0]}, done(nil), nil
		case AgentFailed:
			switch e.Reason {
			case ReasonDeclined:
				return Rejected{}, done(failure(errors.KindWalletRejected, "approval rejected in signing agent", e.Err)), nil
			case ReasonAlreadyPending:
				return AlreadyPending{}, done(failure(errors.KindWalletRequestPending, "resolve the pending request in the signing agent", e.Err)), nil
			default:
				return Disconnected{}, done(failure(errors.KindWalletConnectionFailed, "signing agent failed", e.Err)), nil
			}
		}
	}

	return current, Effect{}, illegal(current, event)
}

func done(err error) Effect {
	return Effect{Kind: EffectDone, Err: err}
}

func failure(kind errors.Kind, message string, cause error) error {
	if cause == nil {
		return errors.New(kind, "wallet.connect", message)
	}
	return errors.Reclassify(kind, "wallet.connect", message, cause)
}

func illegal(current State, event Event) error {
	return fmt.Errorf("%w: %T in %s", ErrIllegalTransition, event, current.Name())
}
