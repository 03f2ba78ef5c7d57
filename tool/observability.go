package tool

import (
	"sync"
	"time"
)

// InvokeObservation captures one tool invocation outcome.
type InvokeObservation struct {
	ToolName         string
	ManualName       string
	CallTemplateType string
	Duration         time.Duration
	Success          bool
	ErrorCode        string
}

// DiscoveryObservation captures one load or search pass.
type DiscoveryObservation struct {
	Operation  string
	Query      string
	Listed     int
	Translated int
	Skipped    int
	Returned   int
	Duration   time.Duration
	ErrorCode  string
}

// Observer receives tool-level observability events.
type Observer interface {
	ObserveInvoke(observation InvokeObservation)
	ObserveDiscovery(observation DiscoveryObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveInvoke(InvokeObservation)       {}
func (noopObserver) ObserveDiscovery(DiscoveryObservation) {}

var (
	observerMu     sync.RWMutex
	activeObserver Observer = noopObserver{}
)

// SetObserver sets the process-wide observer. Nil restores the noop observer.
func SetObserver(observer Observer) {
	observerMu.Lock()
	defer observerMu.Unlock()
	if observer == nil {
		activeObserver = noopObserver{}
		return
	}
	activeObserver = observer
}

func currentObserver() Observer {
	observerMu.RLock()
	defer observerMu.RUnlock()
	return activeObserver
}

func emitInvokeObservation(observation InvokeObservation) {
	currentObserver().ObserveInvoke(observation)
}

// ReportDiscovery forwards a discovery pass to the active observer.
func ReportDiscovery(observation DiscoveryObservation) {
	currentObserver().ObserveDiscovery(observation)
}
