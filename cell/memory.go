package cell

import "sync"

type memoryCell struct {
	name string
	mu   sync.Mutex
	v    int64
}

// NewMemory returns a Set whose cells live in this process only.
func NewMemory() *Set {
	cells := make([]Cell, 0, len(names()))
	for _, n := range names() {
		cells = append(cells, &memoryCell{name: n})
	}
	return newSet(cells, nil)
}

func (c *memoryCell) Name() string { return c.name }

func (c *memoryCell) Get() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v, nil
}

func (c *memoryCell) Set(v int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = v
	return nil
}

func (c *memoryCell) Add(delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v += delta
	return c.v, nil
}

func (c *memoryCell) CheckAndClear() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.v != 0
	c.v = 0
	return was, nil
}
