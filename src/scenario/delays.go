package scenario

import (
	"time"

	"github.com/mosaicnetworks/forkchain/src/net"
)

// Delayer is a transport accepting an injected send delay.
type Delayer interface {
	SetDelay(delay net.DelayFunc)
}

// ApplyDelay gives t a uniform delay drawn from [min, max].
func ApplyDelay(t Delayer, min, max time.Duration, seed int64) {
	t.SetDelay(net.NewUniformDelay(min, max, seed))
}

// ApplyDelays gives every transport an independent uniform delay drawn from
// [min, max]. Transport i is seeded with seed+i so runs are reproducible.
func ApplyDelays(transports []*net.InmemTransport, min, max time.Duration, seed int64) {
	for i, t := range transports {
		ApplyDelay(t, min, max, seed+int64(i))
	}
}

// ClearDelays removes injected delays.
func ClearDelays(transports []*net.InmemTransport) {
	for _, t := range transports {
		t.SetDelay(nil)
	}
}
