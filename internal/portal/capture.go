package portal

import (
	"regexp"
	"sync"
)

// capture hands the first request URL matching pattern to the armed waiter.
type capture struct {
	mu      sync.Mutex
	pattern *regexp.Regexp
	waiter  chan string
}

func newCapture(pattern *regexp.Regexp) *capture {
	return &capture{pattern: pattern}
}

// arm replaces any pending waiter with a fresh one.
func (c *capture) arm() <-chan string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan string, 1)
	c.waiter = ch
	return ch
}

func (c *capture) disarm() {
	c.mu.Lock()
	c.waiter = nil
	c.mu.Unlock()
}

// observe is fed every outgoing request URL.
func (c *capture) observe(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiter == nil || !c.pattern.MatchString(url) {
		return false
	}
	c.waiter <- url
	c.waiter = nil
	return true
}
