package net

import (
	"strconv"
	"testing"
	"time"

	"github.com/mosaicnetworks/forkchain/src/common"
	"github.com/mosaicnetworks/forkchain/src/ledger"
)

func newInmemNetwork(t *testing.T, n int) []*InmemTransport {
	res := make([]*InmemTransport, n)
	for i := 0; i < n; i++ {
		_, res[i] = NewInmemTransport(strconv.Itoa(i), common.NewTestEntry(t, common.TestLogLevel))
	}
	ConnectAll(res)
	return res
}

func receive(t *testing.T, trans Transport, timeout time.Duration) *NetworkMessage {
	select {
	case m := <-trans.Consumer():
		return m
	case <-time.After(timeout):
		return nil
	}
}

func heartbeat(t *testing.T, from string) *NetworkMessage {
	msg, err := NewHeartbeat(from, ledger.GenesisBlock())
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestInmemSend(t *testing.T) {
	trans := newInmemNetwork(t, 3)

	if !trans[0].Send("1", heartbeat(t, "0")) {
		t.Fatal("send to a connected peer should succeed")
	}
	m := receive(t, trans[1], time.Second)
	if m == nil || m.SenderID != "0" {
		t.Fatalf("expected message from 0, got %v", m)
	}

	if trans[0].Send("7", heartbeat(t, "0")) {
		t.Fatal("send to an unknown peer should fail")
	}

	if s := trans[0].Stats(); s.Sent != 1 {
		t.Fatalf("expected 1 sent, got %+v", s)
	}
	if s := trans[1].Stats(); s.Received != 1 {
		t.Fatalf("expected 1 received, got %+v", s)
	}
}

func TestInmemBroadcast(t *testing.T) {
	trans := newInmemNetwork(t, 5)

	if n := trans[2].Broadcast(heartbeat(t, "2")); n != 4 {
		t.Fatalf("expected 4 deliveries, got %d", n)
	}
	for i, tr := range trans {
		if i == 2 {
			continue
		}
		if receive(t, tr, time.Second) == nil {
			t.Fatalf("node %d did not receive the broadcast", i)
		}
	}
}

func TestInmemPartition(t *testing.T) {
	trans := newInmemNetwork(t, 5)

	trans[0].SetAllowedPeers([]string{"0", "1", "2"})
	if !trans[0].Partitioned() {
		t.Fatal("transport should report the partition")
	}

	if n := trans[0].Broadcast(heartbeat(t, "0")); n != 2 {
		t.Fatalf("expected 2 deliveries inside the partition, got %d", n)
	}
	if trans[0].Send("3", heartbeat(t, "0")) {
		t.Fatal("send across the partition should fail")
	}
	if receive(t, trans[3], 50*time.Millisecond) != nil {
		t.Fatal("node 3 should receive nothing")
	}

	trans[0].Heal()
	if trans[0].Partitioned() {
		t.Fatal("partition should be healed")
	}
	if !trans[0].Send("3", heartbeat(t, "0")) {
		t.Fatal("send should succeed after heal")
	}
}

func TestInmemDelay(t *testing.T) {
	trans := newInmemNetwork(t, 2)
	trans[0].SetDelay(NewUniformDelay(30*time.Millisecond, 30*time.Millisecond, 1))

	start := time.Now()
	if !trans[0].Send("1", heartbeat(t, "0")) {
		t.Fatal("delayed send should be accepted")
	}
	if receive(t, trans[1], 10*time.Millisecond) != nil {
		t.Fatal("message arrived before its delay")
	}
	if receive(t, trans[1], time.Second) == nil {
		t.Fatal("delayed message never arrived")
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatal("message arrived too early")
	}
}

func TestUniformDelayDeterministic(t *testing.T) {
	a := NewUniformDelay(10*time.Millisecond, 100*time.Millisecond, 42)
	b := NewUniformDelay(10*time.Millisecond, 100*time.Millisecond, 42)
	for i := 0; i < 100; i++ {
		da, db := a(), b()
		if da != db {
			t.Fatalf("draw %d differs: %v vs %v", i, da, db)
		}
		if da < 10*time.Millisecond || da > 100*time.Millisecond {
			t.Fatalf("draw %d out of range: %v", i, da)
		}
	}
}

func TestInmemClose(t *testing.T) {
	trans := newInmemNetwork(t, 2)
	if err := trans[1].Close(); err != nil {
		t.Fatal(err)
	}
	if trans[0].Send("1", heartbeat(t, "0")) {
		t.Fatal("send to a closed transport should fail")
	}
	if trans[1].Send("0", heartbeat(t, "1")) {
		t.Fatal("a closed transport should not send")
	}
}
