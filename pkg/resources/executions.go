package resources

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/antibyte/stuck/pkg/logger"
)

var ErrAlreadyRunning = errors.New("a program is already running in this session")

// ExecutionManager tracks the program run of each session. A session runs at most one program at a time.
type ExecutionManager struct {
	executions map[string]*Execution
	mu         sync.Mutex
}

// Execution is one running program.
type Execution struct {
	SessionID   string
	ProgramName string
	StartTime   time.Time
	Context     context.Context
	Cancel      context.CancelFunc
}

func NewExecutionManager() *ExecutionManager {
	return &ExecutionManager{executions: make(map[string]*Execution)}
}

// StartExecution registers a run for the session. The returned context is cancelled
// by StopExecution, by the timeout (when positive) or when parent is done.
func (em *ExecutionManager) StartExecution(parent context.Context, sessionID, programName string, timeout time.Duration) (*Execution, error) {
	em.mu.Lock()
	defer em.mu.Unlock()

	if _, exists := em.executions[sessionID]; exists {
		return nil, ErrAlreadyRunning
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	execution := &Execution{
		SessionID:   sessionID,
		ProgramName: programName,
		StartTime:   time.Now(),
		Context:     ctx,
		Cancel:      cancel,
	}
	em.executions[sessionID] = execution
	logger.Debug(logger.AreaSession, "Execution started: %s (%s)", sessionID, programName)
	return execution, nil
}

// FinishExecution releases the run. It is a no-op when the session has since started another run.
func (em *ExecutionManager) FinishExecution(execution *Execution) {
	em.mu.Lock()
	defer em.mu.Unlock()

	execution.Cancel()
	if current, exists := em.executions[execution.SessionID]; exists && current == execution {
		delete(em.executions, execution.SessionID)
	}
	logger.Debug(logger.AreaSession, "Execution finished: %s (%s) after %v",
		execution.SessionID, execution.ProgramName, time.Since(execution.StartTime))
}

// StopExecution cancels the session's run, reporting whether one was running.
func (em *ExecutionManager) StopExecution(sessionID string) bool {
	em.mu.Lock()
	defer em.mu.Unlock()

	execution, exists := em.executions[sessionID]
	if !exists {
		return false
	}
	execution.Cancel()
	delete(em.executions, sessionID)
	logger.Info(logger.AreaSession, "Execution stopped: %s (%s) after %v",
		sessionID, execution.ProgramName, time.Since(execution.StartTime))
	return true
}

// IsRunning reports whether the session has a run in progress.
func (em *ExecutionManager) IsRunning(sessionID string) bool {
	em.mu.Lock()
	defer em.mu.Unlock()
	_, exists := em.executions[sessionID]
	return exists
}

// ExecutionCount returns the number of runs in progress.
func (em *ExecutionManager) ExecutionCount() int {
	em.mu.Lock()
	defer em.mu.Unlock()
	return len(em.executions)
}

// StopAll cancels every run.
func (em *ExecutionManager) StopAll() {
	em.mu.Lock()
	defer em.mu.Unlock()
	for sessionID, execution := range em.executions {
		execution.Cancel()
		delete(em.executions, sessionID)
	}
}
