package types

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

const (
	SubtypePlain      = "plain"
	SubtypeSensor     = "sensor"
	SubtypeController = "controller"
)

// DeviceRecord is the canonical representation of a gateway or node as
// maintained by the registry. Empty strings mean the field is unknown.
type DeviceRecord struct {
	ID         string `json:"id"`
	ExternalID string `json:"externalId,omitempty"`
	Name       string `json:"name"`
	GatewayID  string `json:"gatewayId,omitempty"`
	IP         string `json:"ip,omitempty"`
	MAC        string `json:"mac,omitempty"`

	// Type is the normalized device type as reported by the transport
	// (e.g. "control", "sensor-dht22"). Subtype is derived from it and the
	// identity fields on every update and is only set on nodes.
	Type    string `json:"type,omitempty"`
	Subtype string `json:"subtype,omitempty"`

	Status     string `json:"status"`
	Registered bool   `json:"registered"`
	LastSeen   string `json:"lastSeen,omitempty"`
}

// ControllerState is the live identity of a controller-class node, used to
// reconcile control URL configuration against what the transport reports.
type ControllerState struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Device string `json:"device,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Type   string `json:"type,omitempty"`
}

type Collection[T any] struct {
	Data       []T
	Count      uint64
	Offset     uint64
	Limit      uint64
	TotalCount uint64
}

// ControlURLItem is a user configured endpoint bound to a controller. The ID
// equals the controller id once a live controller has been matched, otherwise
// it is a provisional key.
type ControlURLItem struct {
	ID           string `json:"id"`
	ControllerID string `json:"controller_id,omitempty"`
	NodeID       string `json:"node_id,omitempty"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	InputType    string `json:"input_type"`
}
