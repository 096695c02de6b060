package core

import "sync"

// Serializer runs submitted tasks one at a time in submission order. A task
// submitted while another is running, whether from another goroutine or
// re-entrantly from the running task itself, is queued and executed by the
// goroutine that is already draining. No lock is held while a task runs,
// so tasks may freely call into other operators.
//
// The zero value is ready to use.
type Serializer struct {
	mu      sync.Mutex
	queue   []func()
	head    int
	running bool
}

// Do runs fn inside the serial domain.
func (s *Serializer) Do(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true

	for {
		if s.head == len(s.queue) {
			s.queue = s.queue[:0]
			s.head = 0
			s.running = false
			s.mu.Unlock()
			return
		}
		task := s.queue[s.head]
		s.queue[s.head] = nil
		s.head++
		s.mu.Unlock()

		s.run(task)

		s.mu.Lock()
	}
}

// run executes one task. If it panics the domain is released so that a
// later Do can drain what is left, and the panic continues unwinding.
func (s *Serializer) run(task func()) {
	ok := false
	defer func() {
		if !ok {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()
	task()
	ok = true
}
