package main

import (
	"fmt"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// progressPrinter shows a single-line status with elapsed time while a
// blocking engine operation runs.
//
// A progressPrinter is single-use: Start at most once, then Stop. Stop is
// safe to call multiple times.
type progressPrinter struct {
	prefix    string
	phase     atomic.Value // stores string
	startTime time.Time
	ticker    atomic.Pointer[time.Ticker]
	stopChan  chan struct{}
	done      chan struct{}
	started   atomic.Bool
}

func newProgressPrinter(prefix, phase string) *progressPrinter {
	p := &progressPrinter{prefix: prefix}
	p.phase.Store(phase)
	return p
}

// Start begins printing progress updates from a background goroutine.
func (p *progressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("progressPrinter.Start called more than once")
	}

	p.done = make(chan struct{})
	p.stopChan = make(chan struct{})
	p.startTime = time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	p.ticker.Store(ticker)

	fmt.Printf("\r%s (%s...)   ", p.prefix, p.phase.Load().(string))

	go func() {
		defer close(p.done)
		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				elapsed := int(time.Since(p.startTime).Seconds())
				fmt.Printf("\r%s (%s %ds)   ", p.prefix, p.phase.Load().(string), elapsed)
			}
		}
	}()
}

// SetPhase updates the displayed phase name. Safe from any goroutine.
func (p *progressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// Stop halts the display and clears the line. Only the first call does
// anything.
func (p *progressPrinter) Stop() {
	ticker := p.ticker.Swap(nil)
	if ticker == nil {
		return
	}

	ticker.Stop()
	close(p.stopChan)
	<-p.done

	fmt.Print(clearLineSequence)
}
