package catalog

import "sync"

// Locks serializes catalog writers per language within one process.
type Locks struct {
	mu    sync.Mutex
	langs map[string]*sync.Mutex
}

func NewLocks() *Locks {
	return &Locks{langs: make(map[string]*sync.Mutex)}
}

// Lock blocks until language is free and returns the unlock func.
func (l *Locks) Lock(language string) func() {
	l.mu.Lock()
	m, ok := l.langs[language]
	if !ok {
		m = &sync.Mutex{}
		l.langs[language] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
