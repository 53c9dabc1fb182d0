package app

// Component is the capability every long-running collector exposes to
// the orchestrator. Start launches the component's goroutines and
// returns quickly; Stop blocks until they have exited.
type Component interface {
	Start() error
	Stop()
	Healthy() bool
	Stats() map[string]interface{}
	Name() string
}
