package worker

import (
	"context"
	"sync"
)

// Routine is a long running routine. It must return once the
// context is done.
type Routine func(ctx context.Context)

// RoutineManager runs routines while the application is up.
type RoutineManager struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	routines []Routine
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// Register registers a routine. A routine registered while the
// manager is running is started immediately.
func (m *RoutineManager) Register(routine Routine) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.routines = append(m.routines, routine)

	if m.running {
		m.start(routine)
	}
}

// Start starts the registered routines.
func (m *RoutineManager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true

	m.ctx, m.cancel = context.WithCancel(context.Background())
	for _, routine := range m.routines {
		m.start(routine)
	}
}

func (m *RoutineManager) start(routine Routine) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		routine(m.ctx)
	}()
}

// Stop signals all the routines to stop and waits for them to return.
func (m *RoutineManager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false

	m.cancel()
	m.cancel = nil
	m.ctx = nil
	m.mu.Unlock()

	m.wg.Wait()
}

// IsRunning determines if the routines are running.
func (m *RoutineManager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.running
}
