package game

import "sync"

// currentCode guards the single process-wide "current session" slot.
type currentCode struct {
	mu   sync.Mutex
	code string
}

// swap installs code as current and returns the previous code.
func (c *currentCode) swap(code string) (old string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old = c.code
	c.code = code
	return old
}

// clear unsets the current code only if it still equals code, so a stale
// EndSession cannot clobber a session begun concurrently.
func (c *currentCode) clear(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.code == code {
		c.code = ""
	}
}

func (c *currentCode) get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

func (c *currentCode) is(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return code != "" && c.code == code
}
