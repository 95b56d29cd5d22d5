package deviceregistry

import (
	"strings"

	"github.com/diwise/iot-gateway-registry/pkg/types"
)

// classify derives a node subtype from a priority ordered list of textual
// signals. "sensor" anywhere beats "control"/"controller" anywhere; nodes
// matching neither are plain. No signal is authoritative and the subtype is
// recomputed on every event, so it may flip between updates.
func classify(signals ...string) string {
	contains := func(substr string) bool {
		for _, s := range signals {
			if strings.Contains(strings.ToLower(s), substr) {
				return true
			}
		}
		return false
	}

	if contains("sensor") {
		return types.SubtypeSensor
	}

	if contains("control") {
		return types.SubtypeController
	}

	return types.SubtypePlain
}

// classifyRecord inspects a canonical record's identity fields, in the same
// order the raw payload signals are inspected: explicit type first, then the
// identifiers, then the display name.
func classifyRecord(rec types.DeviceRecord) string {
	return classify(rec.Type, rec.ID, rec.ExternalID, rec.Name)
}
