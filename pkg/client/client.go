package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/diwise/iot-gateway-registry/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("gateway-registry-client")

// RegistryClient exposes the gateway registry's read API to other services.
type RegistryClient interface {
	Gateways(ctx context.Context) ([]types.DeviceRecord, error)
	Nodes(ctx context.Context) ([]types.DeviceRecord, error)
	Controllers(ctx context.Context) ([]types.DeviceRecord, error)
	Sensors(ctx context.Context) ([]types.DeviceRecord, error)
	ControlURLs(ctx context.Context, nodeID string) ([]types.ControlURLItem, error)
}

type registryClient struct {
	url   string
	token string
}

func NewRegistryClient(registryURL, accessToken string) RegistryClient {
	return &registryClient{
		url:   registryURL,
		token: accessToken,
	}
}

func (c *registryClient) Gateways(ctx context.Context) ([]types.DeviceRecord, error) {
	return c.queryDevices(ctx, "query-gateways", "/api/v0/gateways")
}

func (c *registryClient) Nodes(ctx context.Context) ([]types.DeviceRecord, error) {
	return c.queryDevices(ctx, "query-nodes", "/api/v0/nodes")
}

func (c *registryClient) Controllers(ctx context.Context) ([]types.DeviceRecord, error) {
	return c.queryDevices(ctx, "query-controllers", "/api/v0/controllers")
}

func (c *registryClient) Sensors(ctx context.Context) ([]types.DeviceRecord, error) {
	return c.queryDevices(ctx, "query-sensors", "/api/v0/sensors")
}

func (c *registryClient) queryDevices(ctx context.Context, spanName, path string) ([]types.DeviceRecord, error) {
	var err error
	ctx, span := tracer.Start(ctx, spanName)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var response struct {
		Data []types.DeviceRecord `json:"data"`
	}

	err = c.get(ctx, c.url+path, &response)
	if err != nil {
		return nil, err
	}

	return response.Data, nil
}

func (c *registryClient) ControlURLs(ctx context.Context, nodeID string) ([]types.ControlURLItem, error) {
	var err error
	ctx, span := tracer.Start(ctx, "query-control-urls")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var response struct {
		Data []types.ControlURLItem `json:"data"`
	}

	err = c.get(ctx, c.url+"/api/v0/controlurls?node_id="+url.QueryEscape(nodeID), &response)
	if err != nil {
		return nil, err
	}

	return response.Data, nil
}

func (c *registryClient) get(ctx context.Context, url string, result any) error {
	log := logging.GetFromContext(ctx)

	httpClient := http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}

	if c.token != "" {
		req.Header.Add("Authorization", "Bearer "+c.token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		log.Error("failed to query gateway registry", "err", err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("request failed with status code %d", resp.StatusCode)
		log.Error("failed to query gateway registry", "err", err.Error())
		return err
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	err = json.Unmarshal(respBody, result)
	if err != nil {
		return fmt.Errorf("failed to unmarshal response body: %w", err)
	}

	return nil
}
