package events

import "sync"

var (
	globalBus     EventBus
	globalBusLock sync.RWMutex
)

// SetGlobalEventBus sets the process-wide event bus instance.
func SetGlobalEventBus(bus EventBus) {
	globalBusLock.Lock()
	defer globalBusLock.Unlock()
	globalBus = bus
}

// GetGlobalEventBus returns the process-wide event bus instance.
func GetGlobalEventBus() EventBus {
	globalBusLock.RLock()
	defer globalBusLock.RUnlock()
	return globalBus
}

// Publish publishes on the global bus if one is set.
func Publish(e Event) {
	if b := GetGlobalEventBus(); b != nil {
		b.Publish(e)
	}
}
