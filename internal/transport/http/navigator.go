package httptransport

import "sync"

// Navigator moves the user interface to another route.
type Navigator interface {
	Current() string
	Navigate(path string)
}

// RouteNavigator tracks the current route in memory and reports changes.
type RouteNavigator struct {
	mu         sync.Mutex
	current    string
	onNavigate func(path string)
}

// NewRouteNavigator starts at initial. onNavigate may be nil.
func NewRouteNavigator(initial string, onNavigate func(path string)) *RouteNavigator {
	return &RouteNavigator{current: initial, onNavigate: onNavigate}
}

func (n *RouteNavigator) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *RouteNavigator) Navigate(path string) {
	n.mu.Lock()
	n.current = path
	cb := n.onNavigate
	n.mu.Unlock()
	if cb != nil {
		cb(path)
	}
}
