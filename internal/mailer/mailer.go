package mailer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrStopped is returned by Enqueue once the dispatcher is shutting down.
var ErrStopped = errors.New("mail dispatcher stopped")

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers one message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher delivers queued messages on a bounded set of workers.
type Dispatcher interface {
	Start(ctx context.Context) error
	Enqueue(ctx context.Context, msg Message) error
	Shutdown()
}

const defaultDrainTimeout = 30 * time.Second

type Config struct {
	Workers int
	// DrainTimeout bounds how long Shutdown waits for queued mail before
	// abandoning it.
	DrainTimeout time.Duration
	Logger       *logrus.Logger
}

type dispatcher struct {
	cfg    Config
	sender Sender

	sem    chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

func NewDispatcher(cfg Config, sender Sender) Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &dispatcher{
		cfg:    cfg,
		sender: sender,
		sem:    make(chan struct{}, cfg.Workers),
	}
}

func (d *dispatcher) Start(ctx context.Context) error {
	if d.sender == nil {
		return fmt.Errorf("mail sender is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx != nil {
		return fmt.Errorf("mail dispatcher already started")
	}
	// Only Shutdown ends delivery; ctx contributes values, not cancellation.
	d.ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	d.cfg.Logger.Infof("mail dispatcher started, workers: %d", d.cfg.Workers)
	return nil
}

// Enqueue hands msg to a worker and returns without waiting for delivery.
func (d *dispatcher) Enqueue(_ context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("message recipient is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil || d.closed || d.ctx.Err() != nil {
		return ErrStopped
	}
	runCtx := d.ctx

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case <-runCtx.Done():
			d.cfg.Logger.WithField("to", msg.To).Warn("mail dropped, dispatcher stopped before delivery")
			return
		case d.sem <- struct{}{}:
			defer func() { <-d.sem }()
			d.deliver(runCtx, msg)
		}
	}()
	return nil
}

func (d *dispatcher) deliver(ctx context.Context, msg Message) {
	logger := d.cfg.Logger.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	})
	if err := d.sender.Send(ctx, msg); err != nil {
		logger.WithError(err).Error("send mail failed")
		return
	}
	logger.Debug("mail sent")
}

// Shutdown stops accepting messages and waits for queued mail to go out.
// Whatever is still pending after DrainTimeout is abandoned.
func (d *dispatcher) Shutdown() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(d.cfg.DrainTimeout):
		d.cfg.Logger.Warnf("mail drain exceeded %s, abandoning undelivered mail", d.cfg.DrainTimeout)
	}

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()
	<-drained
	d.cfg.Logger.Info("mail dispatcher stopped")
}
