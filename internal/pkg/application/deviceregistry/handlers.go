package deviceregistry

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/diwise/iot-gateway-registry/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("iot-gateway-registry/device")

const gatewayStatusTopic = "gateway-status"

func (r *registry) RegisterTopicMessageHandler(ctx context.Context) error {
	return r.messenger.RegisterTopicMessageHandler(gatewayStatusTopic, NewGatewayStatusHandler(r))
}

// NewGatewayStatusHandler decodes gateway status events arriving on the
// transport and feeds them into the registry. Malformed messages are logged
// and dropped; they never stop the consumer.
func NewGatewayStatusHandler(svc DeviceRegistry) messaging.TopicMessageHandler {
	return func(ctx context.Context, itm messaging.IncomingTopicMessage, l *slog.Logger) {
		var err error

		ctx, span := tracer.Start(ctx, "gateway-status")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(span, l, ctx)

		evt := types.GatewayEvent{}
		err = json.Unmarshal(itm.Body(), &evt)
		if err != nil {
			log.Error("failed to unmarshal gateway status", "err", err.Error())
			return
		}

		ctx = logging.NewContextWithLogger(ctx, log, slog.String("gateway_id", evt.ID))

		err = svc.HandleGatewayEvent(ctx, evt)
		if err != nil {
			log.Error("could not handle gateway status", "err", err.Error())
			return
		}
	}
}
