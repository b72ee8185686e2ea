package net

import (
	"math/rand"
	"sync"
	"time"
)

// DelayFunc returns the delivery delay of the next message.
type DelayFunc func() time.Duration

// NewUniformDelay returns a DelayFunc drawing uniformly from [min, max] with a
// private generator seeded by seed. It is safe for concurrent use.
func NewUniformDelay(min, max time.Duration, seed int64) DelayFunc {
	if max < min {
		min, max = max, min
	}
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(seed))
	return func() time.Duration {
		if max == min {
			return min
		}
		mu.Lock()
		d := min + time.Duration(rng.Int63n(int64(max-min)+1))
		mu.Unlock()
		return d
	}
}
