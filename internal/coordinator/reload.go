package coordinator

import (
	"context"
	"fmt"
	"log"

	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

// enterGate blocks while a reload holds the model, then registers a running computation.
// Flights admitted before the reload began pass through: the reload waits for them.
func (c *Coordinator) enterGate(ctx context.Context, f *flight) error {
	c.mu.Lock()
	for {
		// f.cancel runs under mu, so an abandoned flight never registers.
		if err := ctx.Err(); err != nil {
			c.mu.Unlock()
			return err
		}
		if !c.reloading || f.gen != c.gen {
			break
		}
		ch := c.reloadDone
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}
	c.running++
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) leaveGate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running--
	c.signalDrainedLocked()
}

// drainedLocked reports whether nothing admitted before the current generation can still
// reach the model.
func (c *Coordinator) drainedLocked() bool {
	if c.running > 0 {
		return false
	}
	for _, f := range c.flights {
		if f.gen < c.gen {
			return false
		}
	}
	return true
}

func (c *Coordinator) signalDrainedLocked() {
	if c.drained != nil && c.drainedLocked() {
		close(c.drained)
		c.drained = nil
	}
}

// Reloading reports whether a reload is in progress.
func (c *Coordinator) Reloading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reloading
}

// Reload runs swap with no computation using the model. Under ReloadWait it holds flights
// admitted from now on and waits for every earlier one to finish; under ReloadFailFast it
// returns ErrBusy if anything is pending. Settled results are purged after a successful swap.
func (c *Coordinator) Reload(ctx context.Context, swap func() error) error {
	c.mu.Lock()
	if c.reloading {
		c.mu.Unlock()
		return fmt.Errorf("%w: reload already in progress", model.ErrBusy)
	}
	if c.cfg.ReloadPolicy == ReloadFailFast && (c.running > 0 || len(c.flights) > 0) {
		pending := len(c.flights)
		c.mu.Unlock()
		return fmt.Errorf("%w: %d requests pending", model.ErrBusy, pending)
	}

	c.reloading = true
	c.gen++
	c.reloadDone = make(chan struct{})
	var drained chan struct{}
	if !c.drainedLocked() {
		drained = make(chan struct{})
		c.drained = drained
		log.Printf("Reload waiting for %d pending and %d running computations", len(c.flights), c.running)
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reloading = false
		c.drained = nil
		close(c.reloadDone)
		c.mu.Unlock()
	}()

	if drained != nil {
		select {
		case <-drained:
		case <-ctx.Done():
			return fmt.Errorf("%w: pending requests did not drain: %v", model.ErrBusy, ctx.Err())
		}
	}

	if err := swap(); err != nil {
		return err
	}
	c.Purge()
	return nil
}
