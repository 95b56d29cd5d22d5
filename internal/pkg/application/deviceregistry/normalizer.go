package deviceregistry

import (
	"fmt"
	"strings"
	"time"

	"github.com/diwise/iot-gateway-registry/pkg/types"
)

// Alias resolution order for incoming payload fields, applied here and
// nowhere else:
//
//	node id:   id, node_id, nodeId
//	gateway:   gateway_id, gatewayId, enclosing gateway event, prior value
//	last seen: lastSeen, last_seen, timestamp, gateway_timestamp, prior value
//	ip:        ip, ip_address, prior value
//	mac:       mac, mac_address, prior value
//	type:      type, node_type, role, category, prior value
//
// A node event that yields no identifier has no effect.

func resolveNodeID(p types.NodeEvent) string {
	return firstOf(p.ID, p.NodeIDSnake, p.NodeIDCamel)
}

func resolveLastSeen(p types.NodeEvent, existing string) string {
	if v := firstOf(p.LastSeen, p.LastSeenSnake, p.Timestamp, p.GatewayTimestamp); v != "" {
		return v
	}
	return existing
}

func resolveDeviceType(p types.NodeEvent) *string {
	return firstPtr(p.Type, p.NodeType, p.Role, p.Category)
}

// normalizeStatus collapses any status value a producer may send into the
// two states the registry knows about. Anything but "online" is offline.
func normalizeStatus(v string) string {
	if strings.EqualFold(strings.TrimSpace(v), types.StatusOnline) {
		return types.StatusOnline
	}
	return types.StatusOffline
}

// normalizeDeviceType lower-cases the reported type and strips the legacy
// "node-" prefix some gateways still send.
func normalizeDeviceType(v string) string {
	normalized := strings.ToLower(strings.TrimSpace(v))
	return strings.TrimPrefix(normalized, "node-")
}

// normalizeNode maps a node event onto a canonical record, merging with the
// existing record for the same id. Fields omitted from the payload keep
// their prior values; a freshly created record gets a synthesized name.
// The second return value is false when the payload yields no identifier.
func normalizeNode(p types.NodeEvent, existing *types.DeviceRecord, fallbackGatewayID string) (types.DeviceRecord, bool) {
	id := resolveNodeID(p)
	if id == "" {
		return types.DeviceRecord{}, false
	}

	prior := types.DeviceRecord{}
	if existing != nil {
		prior = *existing
	}

	rec := types.DeviceRecord{
		ID:         id,
		ExternalID: prior.ExternalID,
		Name:       valueOr(p.Name, prior.Name, fmt.Sprintf("Node %s", id)),
		GatewayID:  valueOr(firstPtr(p.GatewayIDSnake, p.GatewayIDCamel), fallbackGatewayID, prior.GatewayID),
		IP:         valueOr(firstPtr(p.IP, p.IPAddress), prior.IP, ""),
		MAC:        valueOr(firstPtr(p.MAC, p.MACAddress), prior.MAC, ""),
		Type:       normalizeDeviceType(valueOr(resolveDeviceType(p), prior.Type, "")),
		Status:     normalizeStatus(valueOr(p.Status, prior.Status, "")),
		Registered: boolOr(p.Registered, prior.Registered),
		LastSeen:   resolveLastSeen(p, prior.LastSeen),
	}

	return rec, true
}

// normalizeGateway maps a gateway event onto a canonical record. Unlike
// nodes, a gateway's status reflects the latest event only and is not
// carried over from the prior record; the watchdog owns the downgrade.
func normalizeGateway(p types.GatewayEvent, existing *types.DeviceRecord) (types.DeviceRecord, bool) {
	if p.ID == "" {
		return types.DeviceRecord{}, false
	}

	prior := types.DeviceRecord{}
	if existing != nil {
		prior = *existing
	}

	rec := types.DeviceRecord{
		ID:         p.ID,
		ExternalID: prior.ExternalID,
		Name:       valueOr(p.Name, prior.Name, fmt.Sprintf("Gateway %s", p.ID)),
		IP:         valueOr(p.IP, prior.IP, ""),
		MAC:        valueOr(p.MAC, prior.MAC, ""),
		Status:     normalizeStatus(strOrEmpty(p.Status)),
		Registered: boolOr(p.Registered, prior.Registered),
		LastSeen:   valueOr(p.LastSeen, prior.LastSeen, ""),
	}

	return rec, true
}

func strOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTimestamp parses a lastSeen value. Unparseable or absent values
// return false, which the watchdog treats as stale.
func parseTimestamp(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

func firstOf(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

func firstPtr(values ...*string) *string {
	for _, v := range values {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}

func valueOr(v *string, prior, def string) string {
	if v != nil && *v != "" {
		return *v
	}
	if prior != "" {
		return prior
	}
	return def
}

func boolOr(v *bool, prior bool) bool {
	if v != nil {
		return *v
	}
	return prior
}
