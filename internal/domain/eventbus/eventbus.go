package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// Logger is the logging contract the bus needs.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Options configures a Bus.
type Options struct {
	Logger Logger
}

// Bus is an injected in-process event bus. Publish delivers to every
// subscriber before it returns, so subscribers see events in publish order.
type Bus struct {
	bus    evbus.Bus
	logger Logger

	mu     sync.RWMutex
	closed bool
}

func New(opts Options) *Bus {
	return &Bus{
		bus:    evbus.New(),
		logger: opts.Logger,
	}
}

// Publish delivers synchronously. A panicking handler is logged and stops
// delivery of that one event; the publisher never sees it.
func (b *Bus) Publish(topic string, args ...any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("handler for %s panicked: %v", topic, r)
		}
	}()
	b.bus.Publish(topic, args...)
}

// Subscribe registers fn to run inside Publish.
func (b *Bus) Subscribe(topic string, fn any) error {
	return b.bus.Subscribe(topic, fn)
}

// Close waits for running deliveries. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
