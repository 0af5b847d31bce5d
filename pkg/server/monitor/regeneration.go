package monitor

import (
	"sync"
	"time"
)

// maxConsecutiveErrors before the scheduler is reported unhealthy
const maxConsecutiveErrors = 3

// RegenerationMonitor tracks the health of scheduled regeneration passes.
type RegenerationMonitor struct {
	mu                sync.RWMutex
	staleAfter        time.Duration
	lastSuccess       time.Time
	lastAttempt       time.Time
	consecutiveErrors int
	lastError         string
	entities          int
}

// NewRegenerationMonitor creates a monitor that reports unhealthy when no
// pass has succeeded within staleAfter. Zero disables the staleness check,
// for deployments that regenerate only on demand.
func NewRegenerationMonitor(staleAfter time.Duration) *RegenerationMonitor {
	return &RegenerationMonitor{staleAfter: staleAfter}
}

// RecordSuccess records a pass that regenerated every configured entity.
func (rm *RegenerationMonitor) RecordSuccess(entities int) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.lastSuccess = time.Now()
	rm.lastAttempt = rm.lastSuccess
	rm.consecutiveErrors = 0
	rm.lastError = ""
	rm.entities = entities
}

// RecordEntityRegenerated marks fresh data from a single successful
// regeneration, scheduled or on demand. It refreshes the staleness clock but
// leaves the pass error count to RecordSuccess.
func (rm *RegenerationMonitor) RecordEntityRegenerated() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.lastSuccess = time.Now()
	rm.lastAttempt = rm.lastSuccess
}

// RecordFailure records a failed pass.
func (rm *RegenerationMonitor) RecordFailure(err error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.lastAttempt = time.Now()
	rm.consecutiveErrors++
	if err != nil {
		rm.lastError = err.Error()
	}
}

// IsHealthy returns true if regeneration is working.
// Unhealthy conditions:
//   - Scheduled and never succeeded
//   - Haven't succeeded within staleAfter
//   - More than 3 consecutive failures
func (rm *RegenerationMonitor) IsHealthy() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.healthyLocked()
}

func (rm *RegenerationMonitor) healthyLocked() bool {
	if rm.consecutiveErrors > maxConsecutiveErrors {
		return false
	}
	if rm.staleAfter == 0 {
		return true
	}
	if rm.lastSuccess.IsZero() {
		return false
	}
	return time.Since(rm.lastSuccess) <= rm.staleAfter
}

// RegenerationStatus is the regeneration section of the health response.
type RegenerationStatus struct {
	Healthy           bool   `json:"healthy"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	Entities          int    `json:"entities,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns current regeneration status for health checks.
func (rm *RegenerationMonitor) Status() RegenerationStatus {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	status := RegenerationStatus{
		Healthy:  rm.healthyLocked(),
		Entities: rm.entities,
	}

	if !rm.lastSuccess.IsZero() {
		status.LastSuccess = rm.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = time.Since(rm.lastSuccess).Round(time.Second).String()
	}
	if !rm.lastAttempt.IsZero() {
		status.LastAttempt = rm.lastAttempt.Format(time.RFC3339)
	}
	if rm.consecutiveErrors > 0 {
		status.ConsecutiveErrors = rm.consecutiveErrors
		status.LastError = rm.lastError
	}

	return status
}
