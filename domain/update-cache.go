package domain

type bufferState int

const (
	bufferFilling bufferState = iota
	bufferFull
)

type CacheResult int

const (
	CacheAppended CacheResult = iota
	CacheStale
	CacheRestarted
)

// UpdateCache is a fixed capacity ring of the most recent contiguous updates.
// It fills like a slice until capacity, then switches once to overwriting the
// oldest entry. Not safe for concurrent use.
type UpdateCache struct {
	state    bufferState
	capacity int
	data     []*OrderBookUpdate
	cur      int
}

func NewUpdateCache(capacity int) *UpdateCache {
	if capacity < 1 {
		capacity = 1
	}
	return &UpdateCache{
		capacity: capacity,
		data:     make([]*OrderBookUpdate, 0, capacity),
	}
}

// Append drops updates older than the tail and restarts the cache when the
// update does not continue the tail.
func (c *UpdateCache) Append(update *OrderBookUpdate) CacheResult {
	if last, ok := c.Last(); ok {
		if update.LastUpdateID < last.LastUpdateID {
			return CacheStale
		}
		if update.FirstUpdateID != last.LastUpdateID+1 {
			c.Reset()
			c.push(update)
			return CacheRestarted
		}
	}
	c.push(update)
	return CacheAppended
}

func (c *UpdateCache) push(update *OrderBookUpdate) {
	switch c.state {
	case bufferFilling:
		c.data = append(c.data, update)
		if len(c.data) == c.capacity {
			c.state = bufferFull
			c.cur = 0
		}
	case bufferFull:
		c.data[c.cur] = update
		c.cur = (c.cur + 1) % c.capacity
	}
}

func (c *UpdateCache) Last() (*OrderBookUpdate, bool) {
	switch {
	case len(c.data) == 0:
		return nil, false
	case c.state == bufferFull:
		return c.data[(c.cur+c.capacity-1)%c.capacity], true
	default:
		return c.data[len(c.data)-1], true
	}
}

// Items returns the cached updates oldest first.
func (c *UpdateCache) Items() []*OrderBookUpdate {
	out := make([]*OrderBookUpdate, 0, len(c.data))
	if c.state == bufferFull {
		out = append(out, c.data[c.cur:]...)
		return append(out, c.data[:c.cur]...)
	}
	return append(out, c.data...)
}

func (c *UpdateCache) Len() int {
	return len(c.data)
}

func (c *UpdateCache) Cap() int {
	return c.capacity
}

func (c *UpdateCache) Full() bool {
	return c.state == bufferFull
}

func (c *UpdateCache) Reset() {
	c.state = bufferFilling
	c.data = make([]*OrderBookUpdate, 0, c.capacity)
	c.cur = 0
}
