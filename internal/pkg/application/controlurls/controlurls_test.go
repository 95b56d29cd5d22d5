package controlurls

import (
	"context"
	"errors"
	"testing"

	"github.com/diwise/iot-gateway-registry/internal/pkg/application/deviceregistry"
	"github.com/diwise/iot-gateway-registry/internal/pkg/infrastructure/storage"
	"github.com/diwise/iot-gateway-registry/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/matryer/is"
)

type fakeStorage struct {
	items []types.ControlURLItem
	err   error
}

func (f *fakeStorage) Query(ctx context.Context, conditions ...storage.ConditionFunc) (types.Collection[types.ControlURLItem], error) {
	if f.err != nil {
		return types.Collection[types.ControlURLItem]{}, f.err
	}
	return types.Collection[types.ControlURLItem]{
		Data:       f.items,
		Count:      uint64(len(f.items)),
		TotalCount: uint64(len(f.items)),
	}, nil
}

func (f *fakeStorage) Add(ctx context.Context, item types.ControlURLItem) error {
	f.items = append(f.items, item)
	return nil
}

func (f *fakeStorage) Update(ctx context.Context, item types.ControlURLItem) error {
	for i := range f.items {
		if f.items[i].ID == item.ID {
			f.items[i] = item
			return nil
		}
	}
	return storage.ErrNoRows
}

func (f *fakeStorage) Delete(ctx context.Context, id string) error {
	for i := range f.items {
		if f.items[i].ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return storage.ErrNoRows
}

type notifier struct{}

func (notifier) Publish(event string, data any) error { return nil }

func testSetup(t *testing.T) (*is.I, context.Context, deviceregistry.DeviceRegistry, *fakeStorage, ControlURLService) {
	is := is.New(t)
	ctx := context.Background()

	m := &messaging.MsgContextMock{
		PublishOnTopicFunc: func(ctx context.Context, message messaging.TopicMessage) error {
			return nil
		},
	}

	registry := deviceregistry.New(m, notifier{})
	t.Cleanup(registry.Shutdown)

	s := &fakeStorage{}

	return is, ctx, registry, s, New(s, registry)
}

func controllerNode(id, name string) types.NodeEvent {
	t := "control"
	return types.NodeEvent{ID: &id, Name: &name, Type: &t}
}

func TestMergedListMatchesLiveController(t *testing.T) {
	is, ctx, registry, s, svc := testSetup(t)

	err := registry.HandleGatewayEvent(ctx, types.GatewayEvent{
		ID:    "gw-01",
		Nodes: []types.NodeEvent{controllerNode("abc", "Relay1")},
	})
	is.NoErr(err)

	s.items = []types.ControlURLItem{
		{ID: "cfg-1", NodeID: "abc", Name: "old name", URL: "https://host/api/Relay1?x=1"},
	}

	merged, err := svc.MergedList(ctx, "abc")
	is.NoErr(err)
	is.Equal(1, len(merged))
	is.Equal("abc", merged[0].ControllerID)
	is.Equal("relay1", merged[0].Name)
	is.Equal("https://host/api/Relay1?x=1", merged[0].URL)
}

func TestMergedListRetainsLastKnownOnStorageFailure(t *testing.T) {
	is, ctx, registry, s, svc := testSetup(t)

	err := registry.HandleGatewayEvent(ctx, types.GatewayEvent{
		ID:    "gw-01",
		Nodes: []types.NodeEvent{controllerNode("abc", "Relay1")},
	})
	is.NoErr(err)

	merged, err := svc.MergedList(ctx, "abc")
	is.NoErr(err)
	is.Equal(1, len(merged))

	s.err = errors.New("connection refused")

	stale, err := svc.MergedList(ctx, "abc")
	is.True(err != nil)
	is.Equal(merged, stale)
}

func TestCreateDefaultsIDAndInputType(t *testing.T) {
	is, ctx, _, s, svc := testSetup(t)

	item, err := svc.Create(ctx, types.ControlURLItem{NodeID: "abc", Name: "relay1"})
	is.NoErr(err)
	is.True(item.ID != "")
	is.Equal("digital", item.InputType)
	is.Equal(1, len(s.items))
}

func TestUpdateUnknownItemReturnsNotFound(t *testing.T) {
	is, ctx, _, _, svc := testSetup(t)

	err := svc.Update(ctx, "nosuchitem", types.ControlURLItem{Name: "x"})
	is.True(errors.Is(err, ErrControlURLNotFound))
}

func TestDeleteIsReportedWhenMissing(t *testing.T) {
	is, ctx, _, _, svc := testSetup(t)

	err := svc.Delete(ctx, "nosuchitem")
	is.True(errors.Is(err, ErrControlURLNotFound))
}
