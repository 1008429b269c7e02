package custody

import (
	"sync"

	"github.com/blues/rvs/internal/raffle"
	"github.com/pkg/errors"
)

// Memory 内存托管账本，用于对照账本实现的测试
type Memory struct {
	mu       sync.RWMutex
	balances map[raffle.Identity]uint64
}

// NewMemory 创建内存托管账本
func NewMemory() *Memory {
	return &Memory{balances: make(map[raffle.Identity]uint64)}
}

func (m *Memory) Balance(id raffle.Identity) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[id], nil
}

func (m *Memory) Transfer(from, to raffle.Identity, amount uint64) error {
	if amount == 0 || from == to {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.balances[from] < amount {
		return errors.Wrapf(ErrInsufficientFunds, "account %s holds %d, needs %d", from.Hex(), m.balances[from], amount)
	}
	credited := m.balances[to] + amount
	if credited < m.balances[to] || credited > raffle.MaxAmount {
		return raffle.ErrMathOverflow
	}
	m.balances[from] -= amount
	m.balances[to] = credited
	return nil
}

func (m *Memory) Credit(id raffle.Identity, amount uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	credited := m.balances[id] + amount
	if credited < m.balances[id] || credited > raffle.MaxAmount {
		return 0, raffle.ErrMathOverflow
	}
	m.balances[id] = credited
	return credited, nil
}
