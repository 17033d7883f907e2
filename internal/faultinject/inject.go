// +build debug

// Package faultinject carries jiva's debug-build fault injection
// hooks (error-inject/inject.go's AddTimeout/AddPingTimeout) into this
// domain: a sleep controlled by an env var that the restapi debug route
// sets. The functional suite does not use it: its timeout scenario runs
// against a cache engine that never replies.
package faultinject

import (
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// AddOpTimeout sleeps for DEBUG_OP_TIMEOUT_MS before a responder dispatches
// a freshly accepted operation, simulating a slow peer so the initiator's
// ClusterTimeout fires.
func AddOpTimeout() {
	ms, _ := strconv.Atoi(os.Getenv("DEBUG_OP_TIMEOUT_MS"))
	if ms == 0 {
		return
	}
	logrus.Infof("faultinject: delaying dispatch by %dms", ms)
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// AddPeerDeathDelay sleeps for DEBUG_PEER_DEATH_DELAY_MS before the
// initiator engine's peer-death fan-out (failAllForPeer) runs, widening the window a
// functional test has to observe in-flight records mid-fan-out.
func AddPeerDeathDelay() {
	ms, _ := strconv.Atoi(os.Getenv("DEBUG_PEER_DEATH_DELAY_MS"))
	if ms == 0 {
		return
	}
	logrus.Infof("faultinject: delaying peer-death fan-out by %dms", ms)
	time.Sleep(time.Duration(ms) * time.Millisecond)
}
