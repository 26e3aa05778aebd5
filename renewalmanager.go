package igd

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

// PortChangeCallback is called when the external port changes during renewal.
// The callback receives the new external port number.
type PortChangeCallback func(newExternalPort uint16)

// RenewalManager keeps a port mapping alive by re-requesting it on an
// interval shorter than its lease.
type RenewalManager struct {
	mapper       PortMapper
	protocol     Protocol
	internalPort uint16
	externalPort uint16
	interval     time.Duration
	lease        time.Duration
	clock        clock.Clock

	mu           sync.Mutex
	ticker       *clock.Ticker
	cancel       context.CancelFunc
	done         chan struct{}
	started      bool
	onPortChange PortChangeCallback
}

// NewRenewalManager creates a renewal manager for a port mapping.
func NewRenewalManager(mapper PortMapper, protocol Protocol, internalPort, externalPort uint16) *RenewalManager {
	return &RenewalManager{
		mapper:       mapper,
		protocol:     protocol,
		internalPort: internalPort,
		externalPort: externalPort,
		interval:     renewalInterval,
		lease:        mappingDuration,
		clock:        clock.New(),
	}
}

// SetSchedule changes the renewal interval and the lease requested on each
// renewal. It has no effect on a running manager.
func (r *RenewalManager) SetSchedule(interval, lease time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interval = interval
	r.lease = lease
}

// SetClock replaces the clock driving renewals.
func (r *RenewalManager) SetClock(clk clock.Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clk
}

// SetPortChangeCallback sets a callback function that will be invoked when
// the external port changes during renewal.
func (r *RenewalManager) SetPortChangeCallback(callback PortChangeCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPortChange = callback
}

// ExternalPort returns the current external port number.
func (r *RenewalManager) ExternalPort() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.externalPort
}

// Start begins the renewal process in a background goroutine.
// Start after Stop begins a fresh cycle.
func (r *RenewalManager) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return
	}

	r.started = true
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.ticker = r.clock.Ticker(r.interval)

	// The loop gets its own references so a later Start cannot race with it.
	go r.renewLoop(ctx, r.ticker.C, r.done)
}

// Stop terminates the renewal process and unmaps the port.
func (r *RenewalManager) Stop(ctx context.Context) {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.cancel()
	r.ticker.Stop()
	done := r.done
	r.mu.Unlock()

	// Wait for an in-flight renewal so the unmap is the last request.
	<-done

	port := r.ExternalPort()
	if err := r.mapper.UnmapPort(ctx, r.protocol, port); err != nil {
		log.Warn().Err(err).
			Str("protocol", string(r.protocol)).
			Uint16("port", port).
			Msg("igd: failed to unmap port during shutdown")
	}
}

func (r *RenewalManager) renewLoop(ctx context.Context, tickerC <-chan time.Time, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-tickerC:
			r.renew(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// renew refreshes the mapping and reports a changed external port to the
// callback, outside the lock.
func (r *RenewalManager) renew(ctx context.Context) {
	newPort, err := r.mapper.MapPort(ctx, r.protocol, r.internalPort, r.lease)
	if err != nil {
		log.Warn().Err(err).
			Str("protocol", string(r.protocol)).
			Uint16("port", r.ExternalPort()).
			Msg("igd: port mapping renewal failed")
		return
	}

	r.mu.Lock()
	oldPort := r.externalPort
	callback := r.onPortChange
	if newPort != oldPort {
		r.externalPort = newPort
		log.Info().
			Str("protocol", string(r.protocol)).
			Uint16("old_port", oldPort).
			Uint16("new_port", newPort).
			Msg("igd: external port changed during renewal")
	}
	r.mu.Unlock()

	if newPort != oldPort {
		// The gateway allocated a new mapping; release the one it replaced.
		if err := r.mapper.UnmapPort(ctx, r.protocol, oldPort); err != nil {
			log.Warn().Err(err).
				Str("protocol", string(r.protocol)).
				Uint16("port", oldPort).
				Msg("igd: failed to release superseded port mapping")
		}
		if callback != nil {
			callback(newPort)
		}
	}

	log.Debug().
		Str("protocol", string(r.protocol)).
		Uint16("port", newPort).
		Msg("igd: port mapping renewed")
}
