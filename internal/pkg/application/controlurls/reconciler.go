package controlurls

import (
	"slices"
	"strings"

	"github.com/diwise/iot-gateway-registry/pkg/types"
)

const defaultInputType = "digital"

func normalizeKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// resolveControllerKey derives the lookup key of a live controller: the
// hardware channel first, then the display name, then the identifier.
func resolveControllerKey(s types.ControllerState) string {
	for _, v := range []string{s.Device, s.Name, s.ID} {
		if key := normalizeKey(v); key != "" {
			return key
		}
	}
	return ""
}

// resolveControllerKind returns the input kind a live controller reports, or
// empty when it reports none.
func resolveControllerKind(s types.ControllerState) string {
	for _, v := range []string{s.Kind, s.Type} {
		if kind := normalizeKey(v); kind != "" {
			return kind
		}
	}
	return ""
}

// DeriveConfigKey derives the lookup key of a configuration item from its
// URL: query string stripped, the last non-empty path segment, lower-cased.
// Items without a usable URL fall back to the first whitespace-delimited
// token of the lower-cased name. Returns empty when neither yields a key.
func DeriveConfigKey(item types.ControlURLItem) string {
	if item.URL != "" {
		sanitized, _, _ := strings.Cut(item.URL, "?")
		segments := strings.Split(strings.TrimSpace(sanitized), "/")

		for i := len(segments) - 1; i >= 0; i-- {
			if segments[i] != "" {
				return strings.ToLower(segments[i])
			}
		}
	}

	if name := normalizeKey(item.Name); name != "" {
		if token, _, found := strings.Cut(name, " "); found {
			return token
		}
		return strings.Fields(name)[0]
	}

	return ""
}

type liveController struct {
	kind string
	id   string
}

// Reconcile merges live controller identity into the configured control URL
// items. Matched items adopt the live kind and controller id, unmatched
// items pass through untouched, and live controllers without configuration
// get a provisional item synthesized. The result is deterministic for the
// same inputs: item order is preserved and synthesized items are appended
// sorted by key.
func Reconcile(states []types.ControllerState, items []types.ControlURLItem) []types.ControlURLItem {
	controllers := map[string]liveController{}
	keys := []string{}

	for _, s := range states {
		key := resolveControllerKey(s)
		if key == "" {
			continue
		}
		if _, ok := controllers[key]; !ok {
			keys = append(keys, key)
		}
		controllers[key] = liveController{
			kind: resolveControllerKind(s),
			id:   strings.TrimSpace(s.ID),
		}
	}

	result := make([]types.ControlURLItem, 0, len(items)+len(controllers))
	matched := map[string]bool{}

	for _, item := range items {
		key := DeriveConfigKey(item)

		ctrl, ok := controllers[key]
		if key == "" || !ok {
			result = append(result, item)
			continue
		}

		matched[key] = true

		item.Name = key
		if ctrl.kind != "" {
			item.InputType = ctrl.kind
		}
		if item.ControllerID == "" && ctrl.id != "" {
			item.ControllerID = ctrl.id
		}
		if item.ControllerID != "" {
			item.ID = item.ControllerID
		}

		result = append(result, item)
	}

	slices.Sort(keys)

	for _, key := range keys {
		if matched[key] {
			continue
		}

		ctrl := controllers[key]

		id := ctrl.id
		if id == "" {
			id = key
		}

		kind := ctrl.kind
		if kind == "" {
			kind = defaultInputType
		}

		result = append(result, types.ControlURLItem{
			ID:           id,
			ControllerID: ctrl.id,
			Name:         key,
			URL:          "",
			InputType:    kind,
		})
	}

	return result
}
