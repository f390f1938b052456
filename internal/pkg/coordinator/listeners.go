package coordinator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"

	"github.com/jake-scott/dahua-bridge/internal/pkg/metrics"
	"github.com/jake-scott/dahua-bridge/internal/pkg/vto"
)

const (
	listenerEventStream = "event-stream"
	listenerVTO         = "vto"
)

// ErrNoDoorbellSession is returned by doorbell calls while no session is up
var ErrNoDoorbellSession = errors.New("no doorbell session")

// startListener starts the one background listener the device needs:
// doorbells speak the binary protocol, everything else the HTTP stream
func (c *Coordinator) startListener() {
	c.mu.RLock()
	doorbell := c.class.Is(FamilyDoorbell)
	c.mu.RUnlock()

	switch {
	case doorbell:
		c.spawn(listenerVTO, c.cfg.VTORetry, func(ctx context.Context) error {
			return c.runVTO(ctx, c.OnVTOEvent)
		})

	case len(c.cfg.Events) > 0:
		c.spawn(listenerEventStream, c.cfg.StreamRetry, func(ctx context.Context) error {
			return c.client.StreamEvents(ctx, c.cfg.Events, c.cfg.Channel, c.OnReceive)
		})

	default:
		c.log().Info("no events configured, not listening for events")
	}
}

func (c *Coordinator) spawn(name string, retry time.Duration, run func(ctx context.Context) error) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.stopped {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancels = append(c.cancels, cancel)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.reconnectLoop(ctx, name, retry, run)
	}()
}

// reconnectLoop runs the listener until ctx is cancelled, waiting an
// exponentially growing delay between sessions.  A session that stayed up
// longer than the maximum delay starts the delays again from the beginning.
func (c *Coordinator) reconnectLoop(ctx context.Context, name string, retry time.Duration, run func(ctx context.Context) error) {
	log := c.log().WithField("listener", name)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retry
	b.MaxInterval = c.cfg.MaxRetry
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		started := c.now()
		err := run(ctx)

		if ctx.Err() != nil {
			log.Debug("listener stopped")
			return
		}

		if err != nil {
			log.WithError(err).Warn("listener failed")
		} else {
			log.Info("listener disconnected")
		}

		if c.now().Sub(started) > c.cfg.MaxRetry {
			b.Reset()
		}

		delay := b.NextBackOff()
		log.Debugf("reconnecting in %s", delay)
		metrics.ObserveReconnect(name)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (c *Coordinator) runVTOSession(ctx context.Context, onEvent vto.EventHandler) error {
	client := vto.NewClient(c.cfg.Address, c.cfg.VTOPort, c.cfg.Username, c.cfg.Password, onEvent)
	if c.cfg.VTODialTimeout > 0 {
		client = client.WithDialTimeout(c.cfg.VTODialTimeout)
	}

	c.mu.Lock()
	c.vtoClient = client
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.vtoClient == client {
			c.vtoClient = nil
		}
		c.mu.Unlock()
	}()

	return client.Run(ctx)
}

// CancelCall hangs up an active doorbell call
func (c *Coordinator) CancelCall() error {
	c.mu.RLock()
	client := c.vtoClient
	c.mu.RUnlock()

	if client == nil {
		return ErrNoDoorbellSession
	}
	return client.CancelCall()
}

// DoorbellDetails returns what the doorbell reported at login, or nil
func (c *Coordinator) DoorbellDetails() map[string]interface{} {
	c.mu.RLock()
	client := c.vtoClient
	c.mu.RUnlock()

	if client == nil {
		return nil
	}
	return client.Details()
}
