package consensus

// leaderCache memoizes the primary leader per height. Entries more than window
// heights below the highest cached height are evicted every evictEvery
// insertions, so memory stays bounded on long runs.
type leaderCache struct {
	window     int
	evictEvery int
	inserts    int
	highest    int
	entries    map[int]int
}

func newLeaderCache(window int) *leaderCache {
	if window <= 0 {
		window = DefaultLeaderCacheWindow
	}
	evictEvery := window / 10
	if evictEvery < 1 {
		evictEvery = 1
	}
	return &leaderCache{
		window:     window,
		evictEvery: evictEvery,
		entries:    make(map[int]int),
	}
}

func (c *leaderCache) get(height int) (int, bool) {
	leader, ok := c.entries[height]
	return leader, ok
}

func (c *leaderCache) put(height, leader int) {
	c.entries[height] = leader
	if height > c.highest {
		c.highest = height
	}
	c.inserts++
	if c.inserts%c.evictEvery == 0 {
		c.evict()
	}
}

func (c *leaderCache) evict() {
	floor := c.highest - c.window
	for h := range c.entries {
		if h < floor {
			delete(c.entries, h)
		}
	}
}

func (c *leaderCache) len() int {
	return len(c.entries)
}
