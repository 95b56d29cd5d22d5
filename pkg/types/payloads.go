package types

// Inbound event shapes as delivered by the transport. Producers are not
// consistent about field naming, so every logical field carries its known
// aliases. Pointers distinguish an omitted field from an empty one; alias
// resolution order is documented in the normalizer.

type GatewayEvent struct {
	ID         string      `json:"id,omitempty"`
	Name       *string     `json:"name,omitempty"`
	IP         *string     `json:"ip,omitempty"`
	MAC        *string     `json:"mac,omitempty"`
	Status     *string     `json:"status,omitempty"`
	Registered *bool       `json:"registered,omitempty"`
	LastSeen   *string     `json:"lastSeen,omitempty"`
	Nodes      []NodeEvent `json:"nodes,omitempty"`
}

type NodeEvent struct {
	ID          *string `json:"id,omitempty"`
	NodeIDSnake *string `json:"node_id,omitempty"`
	NodeIDCamel *string `json:"nodeId,omitempty"`

	Name *string `json:"name,omitempty"`

	GatewayIDSnake *string `json:"gateway_id,omitempty"`
	GatewayIDCamel *string `json:"gatewayId,omitempty"`

	IP        *string `json:"ip,omitempty"`
	IPAddress *string `json:"ip_address,omitempty"`

	MAC        *string `json:"mac,omitempty"`
	MACAddress *string `json:"mac_address,omitempty"`

	Type     *string `json:"type,omitempty"`
	NodeType *string `json:"node_type,omitempty"`
	Role     *string `json:"role,omitempty"`
	Category *string `json:"category,omitempty"`

	Status     *string `json:"status,omitempty"`
	Registered *bool   `json:"registered,omitempty"`

	LastSeen         *string `json:"lastSeen,omitempty"`
	LastSeenSnake    *string `json:"last_seen,omitempty"`
	Timestamp        *string `json:"timestamp,omitempty"`
	GatewayTimestamp *string `json:"gateway_timestamp,omitempty"`
}
