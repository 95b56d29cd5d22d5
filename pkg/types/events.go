package types

import (
	"encoding/json"
	"time"
)

type GatewayUpdated struct {
	GatewayID string    `json:"gatewayId"`
	Timestamp time.Time `json:"timestamp"`
}

func (g *GatewayUpdated) ContentType() string {
	return "application/json"
}
func (g *GatewayUpdated) TopicName() string {
	return "gateway.updated"
}
func (g *GatewayUpdated) Body() []byte {
	b, _ := json.Marshal(g)
	return b
}

type NodesUpdated struct {
	GatewayID string    `json:"gatewayId"`
	NodeIDs   []string  `json:"nodeIds"`
	Timestamp time.Time `json:"timestamp"`
}

func (n *NodesUpdated) ContentType() string {
	return "application/json"
}
func (n *NodesUpdated) TopicName() string {
	return "gateway.nodesUpdated"
}
func (n *NodesUpdated) Body() []byte {
	b, _ := json.Marshal(n)
	return b
}

type DeviceWentOffline struct {
	DeviceID   string    `json:"deviceId"`
	LastSeen   string    `json:"lastSeen,omitempty"`
	ObservedAt time.Time `json:"observedAt"`
}

func (d *DeviceWentOffline) ContentType() string {
	return "application/json"
}
func (d *DeviceWentOffline) TopicName() string {
	return "watchdog.deviceWentOffline"
}
func (d *DeviceWentOffline) Body() []byte {
	b, _ := json.Marshal(d)
	return b
}
