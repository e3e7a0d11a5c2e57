package model

// Identity is the principal record returned by the backend for the signed-in user.
type Identity struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role,omitempty"`
	WalletAddress string `json:"walletAddress,omitempty"`
}

// Clone returns a copy that callers may mutate freely.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// Logger provides the minimal logging contract required by the auth domain.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Publisher receives session lifecycle notifications.
type Publisher interface {
	Publish(topic string, args ...any)
}
