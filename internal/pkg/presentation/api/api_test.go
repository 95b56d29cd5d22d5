package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/diwise/iot-gateway-registry/internal/pkg/application/controlurls"
	"github.com/diwise/iot-gateway-registry/internal/pkg/application/deviceregistry"
	"github.com/diwise/iot-gateway-registry/internal/pkg/infrastructure/storage"
	"github.com/diwise/iot-gateway-registry/internal/pkg/presentation/api/auth"
	"github.com/diwise/iot-gateway-registry/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/matryer/is"
)

type controlURLServiceMock struct {
	MergedListFunc func(ctx context.Context, nodeID string) ([]types.ControlURLItem, error)
	CreateFunc     func(ctx context.Context, item types.ControlURLItem) (types.ControlURLItem, error)
	UpdateFunc     func(ctx context.Context, id string, item types.ControlURLItem) error
	DeleteFunc     func(ctx context.Context, id string) error
}

func (m *controlURLServiceMock) MergedList(ctx context.Context, nodeID string) ([]types.ControlURLItem, error) {
	return m.MergedListFunc(ctx, nodeID)
}

func (m *controlURLServiceMock) Create(ctx context.Context, item types.ControlURLItem) (types.ControlURLItem, error) {
	return m.CreateFunc(ctx, item)
}

func (m *controlURLServiceMock) Update(ctx context.Context, id string, item types.ControlURLItem) error {
	return m.UpdateFunc(ctx, id, item)
}

func (m *controlURLServiceMock) Delete(ctx context.Context, id string) error {
	return m.DeleteFunc(ctx, id)
}

type noopNotifier struct{}

func (noopNotifier) Publish(event string, data any) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueryGatewaysHandlerReturnsSortedCollection(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	msgCtx := &messaging.MsgContextMock{
		PublishOnTopicFunc: func(ctx context.Context, message messaging.TopicMessage) error {
			return nil
		},
	}

	registry := deviceregistry.New(msgCtx, noopNotifier{})
	t.Cleanup(registry.Shutdown)

	is.NoErr(registry.HandleGatewayEvent(ctx, types.GatewayEvent{ID: "gw-01"}))

	req := httptest.NewRequest(http.MethodGet, "/api/v0/gateways", nil)
	res := httptest.NewRecorder()

	queryDevicesHandler(testLogger(), "query-gateways", registry.Gateways).ServeHTTP(res, req)

	is.Equal(http.StatusOK, res.Code)

	var response struct {
		Data []types.DeviceRecord `json:"data"`
	}
	is.NoErr(json.Unmarshal(res.Body.Bytes(), &response))
	is.Equal(1, len(response.Data))
	is.Equal("gw-01", response.Data[0].ID)
}

func TestQueryControlURLsRequiresNodeID(t *testing.T) {
	is := is.New(t)

	svc := &controlURLServiceMock{}

	req := httptest.NewRequest(http.MethodGet, "/api/v0/controlurls", nil)
	res := httptest.NewRecorder()

	queryControlURLsHandler(testLogger(), svc).ServeHTTP(res, req)

	is.Equal(http.StatusBadRequest, res.Code)
}

func TestQueryControlURLsReturnsMergedList(t *testing.T) {
	is := is.New(t)

	svc := &controlURLServiceMock{
		MergedListFunc: func(ctx context.Context, nodeID string) ([]types.ControlURLItem, error) {
			return []types.ControlURLItem{{ID: "abc", ControllerID: "abc", NodeID: nodeID, Name: "relay1"}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v0/controlurls?node_id=abc", nil)
	res := httptest.NewRecorder()

	queryControlURLsHandler(testLogger(), svc).ServeHTTP(res, req)

	is.Equal(http.StatusOK, res.Code)

	var response struct {
		Data []types.ControlURLItem `json:"data"`
	}
	is.NoErr(json.Unmarshal(res.Body.Bytes(), &response))
	is.Equal(1, len(response.Data))
	is.Equal("relay1", response.Data[0].Name)
}

func TestCreateControlURLHandler(t *testing.T) {
	is := is.New(t)

	svc := &controlURLServiceMock{
		CreateFunc: func(ctx context.Context, item types.ControlURLItem) (types.ControlURLItem, error) {
			item.ID = "generated"
			return item, nil
		},
	}

	body := strings.NewReader(`{"node_id":"abc","name":"relay1","url":"https://host/api/Relay1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v0/controlurls", body)
	res := httptest.NewRecorder()

	createControlURLHandler(testLogger(), svc).ServeHTTP(res, req)

	is.Equal(http.StatusCreated, res.Code)

	var created types.ControlURLItem
	is.NoErr(json.Unmarshal(res.Body.Bytes(), &created))
	is.Equal("generated", created.ID)
}

func TestCreateControlURLStorageFailureIsAServerError(t *testing.T) {
	is := is.New(t)

	svc := &controlURLServiceMock{
		CreateFunc: func(ctx context.Context, item types.ControlURLItem) (types.ControlURLItem, error) {
			return types.ControlURLItem{}, fmt.Errorf("%w: connection reset", storage.ErrStoreFailed)
		},
	}

	body := strings.NewReader(`{"node_id":"abc","name":"relay1","url":"https://host/api/Relay1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v0/controlurls", body)
	res := httptest.NewRecorder()

	createControlURLHandler(testLogger(), svc).ServeHTTP(res, req)

	is.Equal(http.StatusInternalServerError, res.Code)
}

func TestCreateControlURLRejectsMalformedBody(t *testing.T) {
	is := is.New(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v0/controlurls", strings.NewReader(`{`))
	res := httptest.NewRecorder()

	createControlURLHandler(testLogger(), &controlURLServiceMock{}).ServeHTTP(res, req)

	is.Equal(http.StatusBadRequest, res.Code)
}

func TestPatchUnknownControlURLReturnsNotFound(t *testing.T) {
	is := is.New(t)

	svc := &controlURLServiceMock{
		UpdateFunc: func(ctx context.Context, id string, item types.ControlURLItem) error {
			return controlurls.ErrControlURLNotFound
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/v0/controlurls/nosuchitem", strings.NewReader(`{}`))
	res := httptest.NewRecorder()

	patchControlURLHandler(testLogger(), svc).ServeHTTP(res, req)

	is.Equal(http.StatusNotFound, res.Code)
}

const policies string = `
package iot.gatewayregistry.authz

default allow := false

allow if {
	input.token == "sometoken"
}
`

func TestAuthenticatorRejectsMissingToken(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	authenticator, err := auth.NewAuthenticator(ctx, testLogger(), strings.NewReader(policies))
	is.NoErr(err)

	handler := authenticator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v0/gateways", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	is.Equal(http.StatusUnauthorized, res.Code)
}

func TestAuthenticatorAcceptsKnownToken(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	authenticator, err := auth.NewAuthenticator(ctx, testLogger(), strings.NewReader(policies))
	is.NoErr(err)

	handler := authenticator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v0/gateways", nil)
	req.Header.Add("Authorization", "Bearer sometoken")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	is.Equal(http.StatusNoContent, res.Code)
}
