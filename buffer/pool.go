package buffer

import "sync"

// Pool recycles Buffers of a single nominal body size: one sync.Pool per
// size class, with no NUMA-node or per-worker partitioning axis. The socket
// accept/read path does not draw from it; it allocates a fresh buffer per
// completion.
type Pool struct {
	size int
	pool sync.Pool
}

// NewPool creates a pool that hands out buffers with at least `size` bytes
// of body capacity and the default head reserve.
func NewPool(size int) *Pool {
	p := &Pool{size: size}
	p.pool.New = func() any {
		return NewWithReserve(size, DefaultHeadReserve)
	}
	return p
}

// Get returns a cleared buffer from the pool.
func (p *Pool) Get() *Buffer {
	b := p.pool.Get().(*Buffer)
	b.Clear()
	return b
}

// Put returns a buffer to the pool. Buffers whose backing array grew well
// past the pool's nominal size are dropped instead of retained, so one
// oversized message does not permanently inflate the pool's footprint.
func (p *Pool) Put(b *Buffer) {
	if cap(b.buf) > p.size*4+DefaultHeadReserve {
		return
	}
	p.pool.Put(b)
}

// Manager hands out size-keyed Pools, keyed purely by size. The worker and
// socket packages neither construct nor use a Manager.
type Manager struct {
	mu    sync.RWMutex
	pools map[int]*Pool
}

// NewManager constructs an empty pool manager.
func NewManager() *Manager {
	return &Manager{pools: make(map[int]*Pool)}
}

// GetPool returns (creating if necessary) the pool for the given size class.
func (m *Manager) GetPool(size int) *Pool {
	m.mu.RLock()
	p, ok := m.pools[size]
	m.mu.RUnlock()
	if ok {
		return p
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pools[size]; ok {
		return p
	}
	p = NewPool(size)
	m.pools[size] = p
	return p
}
