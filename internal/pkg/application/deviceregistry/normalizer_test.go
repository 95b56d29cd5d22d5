package deviceregistry

import (
	"testing"

	"github.com/diwise/iot-gateway-registry/pkg/types"
	"github.com/matryer/is"
)

func strptr(s string) *string { return &s }

func TestResolveNodeIDUsesAliasOrder(t *testing.T) {
	is := is.New(t)

	is.Equal("a", resolveNodeID(types.NodeEvent{ID: strptr("a"), NodeIDSnake: strptr("b")}))
	is.Equal("b", resolveNodeID(types.NodeEvent{NodeIDSnake: strptr("b"), NodeIDCamel: strptr("c")}))
	is.Equal("c", resolveNodeID(types.NodeEvent{NodeIDCamel: strptr("c")}))
	is.Equal("", resolveNodeID(types.NodeEvent{Name: strptr("no id here")}))
}

func TestNormalizeNodeSynthesizesNameOnFirstCreate(t *testing.T) {
	is := is.New(t)

	rec, ok := normalizeNode(types.NodeEvent{ID: strptr("node-01")}, nil, "gw-01")
	is.True(ok)
	is.Equal("Node node-01", rec.Name)
	is.Equal("gw-01", rec.GatewayID)
	is.Equal(types.StatusOffline, rec.Status)
	is.Equal(false, rec.Registered)
}

func TestNormalizeNodeMergePreservesUnseenFields(t *testing.T) {
	is := is.New(t)

	existing := types.DeviceRecord{
		ID:   "node-01",
		Name: "Pump",
		IP:   "1.2.3.4",
		MAC:  "AA:BB",
	}

	rec, ok := normalizeNode(types.NodeEvent{ID: strptr("node-01")}, &existing, "")
	is.True(ok)
	is.Equal("1.2.3.4", rec.IP)
	is.Equal("AA:BB", rec.MAC)
	is.Equal("Pump", rec.Name)
}

func TestNormalizeNodeResolvesLastSeenAliases(t *testing.T) {
	is := is.New(t)

	rec, _ := normalizeNode(types.NodeEvent{
		ID:               strptr("n"),
		GatewayTimestamp: strptr("2024-01-01T00:00:00Z"),
	}, nil, "")
	is.Equal("2024-01-01T00:00:00Z", rec.LastSeen)

	existing := types.DeviceRecord{ID: "n", LastSeen: "2023-12-31T00:00:00Z"}
	rec, _ = normalizeNode(types.NodeEvent{ID: strptr("n")}, &existing, "")
	is.Equal("2023-12-31T00:00:00Z", rec.LastSeen)

	rec, _ = normalizeNode(types.NodeEvent{
		ID:        strptr("n"),
		LastSeen:  strptr("2024-02-02T00:00:00Z"),
		Timestamp: strptr("2024-01-01T00:00:00Z"),
	}, &existing, "")
	is.Equal("2024-02-02T00:00:00Z", rec.LastSeen)
}

func TestNormalizeStatusCollapsesUnknownValues(t *testing.T) {
	is := is.New(t)

	is.Equal(types.StatusOnline, normalizeStatus("Online"))
	is.Equal(types.StatusOffline, normalizeStatus("offline"))
	is.Equal(types.StatusOffline, normalizeStatus("rebooting"))
	is.Equal(types.StatusOffline, normalizeStatus(""))
}

func TestNormalizeDeviceTypeStripsNodePrefix(t *testing.T) {
	is := is.New(t)

	is.Equal("control", normalizeDeviceType("Node-Control"))
	is.Equal("sensor-dht22", normalizeDeviceType("sensor-dht22"))
	is.Equal("", normalizeDeviceType(""))
}

func TestNormalizeGatewayRequiresID(t *testing.T) {
	is := is.New(t)

	_, ok := normalizeGateway(types.GatewayEvent{Name: strptr("anonymous")}, nil)
	is.True(!ok)
}

func TestParseTimestamp(t *testing.T) {
	is := is.New(t)

	_, ok := parseTimestamp("2024-05-01T10:00:00Z")
	is.True(ok)

	_, ok = parseTimestamp("2024-05-01T10:00:00.123456789Z")
	is.True(ok)

	_, ok = parseTimestamp("not a timestamp")
	is.True(!ok)

	_, ok = parseTimestamp("")
	is.True(!ok)
}
