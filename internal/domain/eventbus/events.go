package eventbus

import (
	"eduverse-client-go/internal/domain/auth"
	"eduverse-client-go/internal/domain/mint"
	"eduverse-client-go/internal/domain/wallet"
)

// Topics lists every topic the client publishes.
var Topics = []string{
	auth.TopicLoggedIn,
	auth.TopicLoggedOut,
	auth.TopicRefreshed,
	auth.TopicRefreshFailed,
	wallet.TopicState,
	mint.TopicPhase,
	mint.TopicFailed,
}
