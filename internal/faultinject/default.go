// +build !debug

package faultinject

// AddOpTimeout is a no-op in a production build.
func AddOpTimeout() {}

// AddPeerDeathDelay is a no-op in a production build.
func AddPeerDeathDelay() {}
