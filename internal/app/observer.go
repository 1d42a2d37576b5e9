package app

import "github.com/dkeye/proximity-voice/internal/core"

// Observer receives counters from the background workers.
type Observer interface {
	ObserveLinkage(reason core.LinkageReason)
	ObserveUnlink()
	ObserveFlushed(n int)
	ObserveDropped(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveLinkage(core.LinkageReason) {}
func (nopObserver) ObserveUnlink()                    {}
func (nopObserver) ObserveFlushed(int)                {}
func (nopObserver) ObserveDropped(int)                {}
