package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/diwise/iot-gateway-registry/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"golang.org/x/sys/unix"
	yaml "gopkg.in/yaml.v2"
)

const deviceOfflineEventType = "registry.deviceWentOffline"

// EventSender notifies externally registered subscribers when a device drops
// offline. Subscribers are configured in the notifications section of the
// service configuration.
type EventSender interface {
	Send(ctx context.Context, record types.DeviceRecord) error
}

type eventSender struct {
	subscribers map[string][]SubscriberConfig
}

func New(cfg *Config) EventSender {
	e := &eventSender{
		subscribers: make(map[string][]SubscriberConfig),
	}

	if cfg != nil {
		for _, n := range cfg.Notifications {
			e.subscribers[n.Type] = n.Subscribers
		}
	}

	return e
}

func (e *eventSender) Send(ctx context.Context, record types.DeviceRecord) error {
	if s, ok := e.subscribers[deviceOfflineEventType]; !ok || len(s) == 0 {
		return nil
	}

	c, err := cloudevents.NewClientHTTP()
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	event := cloudevents.NewEvent()
	event.SetID(fmt.Sprintf("%s:%d", record.ID, now.Unix()))
	event.SetTime(now)
	event.SetSource("github.com/diwise/iot-gateway-registry")
	event.SetType(deviceOfflineEventType)

	eventData := struct {
		DeviceID  string `json:"deviceId"`
		Name      string `json:"name"`
		GatewayID string `json:"gatewayId,omitempty"`
		LastSeen  string `json:"lastSeen,omitempty"`
		Timestamp string `json:"timestamp"`
	}{
		DeviceID:  record.ID,
		Name:      record.Name,
		GatewayID: record.GatewayID,
		LastSeen:  record.LastSeen,
		Timestamp: now.Format(time.RFC3339Nano),
	}

	err = event.SetData(cloudevents.ApplicationJSON, eventData)
	if err != nil {
		return err
	}

	logger := logging.GetFromContext(ctx)

	for _, s := range e.subscribers[deviceOfflineEventType] {
		ctxWithTarget := cloudevents.ContextWithTarget(ctx, s.Endpoint)

		result := c.Send(ctxWithTarget, event)
		if cloudevents.IsUndelivered(result) || errors.Is(result, unix.ECONNREFUSED) {
			logger.Error("failed to send event", "endpoint", s.Endpoint, "err", result.Error())
			err = fmt.Errorf("%w", result)
		}
	}

	return err
}

type SubscriberConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type Notification struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Type        string             `yaml:"type"`
	Subscribers []SubscriberConfig `yaml:"subscribers"`
}

type Config struct {
	Notifications []Notification `yaml:"notifications"`
}

func LoadConfiguration(data io.Reader) (*Config, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := Config{}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
