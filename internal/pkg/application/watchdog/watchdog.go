package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/diwise/iot-gateway-registry/internal/pkg/application/deviceregistry"
	"github.com/diwise/iot-gateway-registry/internal/pkg/application/events"
	"github.com/diwise/iot-gateway-registry/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const (
	DefaultInterval  = 30 * time.Second
	DefaultThreshold = 30 * time.Second
)

type Config struct {
	Interval  Duration `yaml:"interval"`
	Threshold Duration `yaml:"threshold"`
}

// Duration accepts time.ParseDuration syntax ("30s", "5m") in yaml.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var value string
	err := unmarshal(&value)
	if err != nil {
		return err
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value, err)
	}

	*d = Duration(parsed)
	return nil
}

// Watchdog periodically sweeps the registry and downgrades devices that have
// not been heard from within the threshold. The sweep only ever moves
// records offline; fresh transport events are the only way back online.
type Watchdog interface {
	Start(ctx context.Context)
	Stop(ctx context.Context)
}

type watchdog struct {
	registry  deviceregistry.DeviceRegistry
	messenger messaging.MsgContext
	sender    events.EventSender

	interval  time.Duration
	threshold time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

func New(registry deviceregistry.DeviceRegistry, messenger messaging.MsgContext, sender events.EventSender, cfg *Config) Watchdog {
	w := &watchdog{
		registry:  registry,
		messenger: messenger,
		sender:    sender,
		interval:  DefaultInterval,
		threshold: DefaultThreshold,
	}

	if cfg != nil {
		if cfg.Interval > 0 {
			w.interval = time.Duration(cfg.Interval)
		}
		if cfg.Threshold > 0 {
			w.threshold = time.Duration(cfg.Threshold)
		}
	}

	return w
}

// Start launches the sweep loop, sweeping once immediately. Calling Start
// while the loop is already running is a no-op.
func (w *watchdog) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go w.sweepLoop(ctx)
}

// Stop cancels the sweep loop and releases its timer. Stopping an already
// stopped watchdog is a no-op.
func (w *watchdog) Stop(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return
	}

	w.cancel()
	w.cancel = nil
}

func (w *watchdog) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *watchdog) sweep(ctx context.Context) {
	log := logging.GetFromContext(ctx)

	downgraded, err := w.registry.MarkStale(ctx, w.threshold)
	if err != nil {
		log.Error("staleness sweep failed", "err", err.Error())
		return
	}

	for _, rec := range downgraded {
		log.Debug("device went offline", "device_id", rec.ID, "last_seen", rec.LastSeen)

		err = w.messenger.PublishOnTopic(ctx, &types.DeviceWentOffline{
			DeviceID:   rec.ID,
			LastSeen:   rec.LastSeen,
			ObservedAt: time.Now().UTC(),
		})
		if err != nil {
			log.Error("could not publish offline event", "device_id", rec.ID, "err", err.Error())
		}

		if w.sender != nil {
			err = w.sender.Send(ctx, rec)
			if err != nil {
				log.Error("could not notify subscribers", "device_id", rec.ID, "err", err.Error())
			}
		}
	}
}
