package deviceregistry

import (
	"slices"
	"strings"

	"github.com/diwise/iot-gateway-registry/pkg/types"
	"github.com/samber/lo"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// project snapshots a cache into a display ready row collection, sorted
// ascending by name using case insensitive collation. The returned slice is a
// copy and shares no state with the cache.
func project(cache map[string]types.DeviceRecord) []types.DeviceRecord {
	rows := lo.Values(cache)

	// collators keep internal buffers, so each projection gets its own
	c := collate.New(language.Und, collate.IgnoreCase)

	slices.SortFunc(rows, func(a, b types.DeviceRecord) int {
		if cmp := c.CompareString(a.Name, b.Name); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.ID, b.ID)
	})

	return rows
}
