package oracle

import (
	"context"
	"sync"

	"github.com/PL7092/MyMoney-sub001/internal/common"
	"github.com/PL7092/MyMoney-sub001/internal/service"
)

// Mock is a scripted oracle for tests.
type Mock struct {
	Suggestion  service.OracleSuggestion
	Err         error
	Unavailable bool
	mu          sync.Mutex
	calls       []service.OracleRequest
}

// Classify returns the scripted response and records the request.
func (m *Mock) Classify(_ context.Context, req service.OracleRequest) (service.OracleSuggestion, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.Unavailable {
		return service.OracleSuggestion{}, common.ErrOracleUnavailable
	}
	if m.Err != nil {
		return service.OracleSuggestion{}, m.Err
	}
	return m.Suggestion, nil
}

// Calls returns a copy of the recorded requests.
func (m *Mock) Calls() []service.OracleRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]service.OracleRequest, len(m.calls))
	copy(out, m.calls)
	return out
}
