package useCases

import (
	"sync"

	"github.com/larriantoniy/tg_session_web/internal/domain"
)

// inputSlot - одноместное рандеву между переговорами и входящим диспетчером канала.
// Одновременно может быть взведён только один запрос.
type inputSlot struct {
	mu      sync.Mutex
	pending chan string
}

func (s *inputSlot) arm() (chan string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		return nil, domain.ErrInputPending
	}
	s.pending = make(chan string, 1)
	return s.pending, nil
}

// deliver отдаёт значение ждущему запросу; false если никто не ждёт.
func (s *inputSlot) deliver(value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return false
	}
	s.pending <- value
	s.pending = nil
	return true
}

func (s *inputSlot) disarm(ch chan string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == ch {
		s.pending = nil
	}
}
