package deviceregistry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/diwise/iot-gateway-registry/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
)

var ErrStopped = errors.New("device registry is stopped")

// DeviceRegistry maintains the canonical, classified in-memory state of all
// gateways and nodes seen on the transport. All mutations are serialized
// through a single worker goroutine; accessors return snapshot copies and
// never references into live state.
type DeviceRegistry interface {
	HandleGatewayEvent(ctx context.Context, evt types.GatewayEvent) error
	Hydrate(ctx context.Context, gateways, nodes []types.DeviceRecord) error
	MarkStale(ctx context.Context, threshold time.Duration) ([]types.DeviceRecord, error)

	Gateways(ctx context.Context) ([]types.DeviceRecord, error)
	Nodes(ctx context.Context) ([]types.DeviceRecord, error)
	Controllers(ctx context.Context) ([]types.DeviceRecord, error)
	Sensors(ctx context.Context) ([]types.DeviceRecord, error)
	ControllerStates(ctx context.Context, nodeID string) ([]types.ControllerState, error)

	RegisterTopicMessageHandler(ctx context.Context) error
	Shutdown()
}

// Notifier pushes row snapshots to the presentation layer.
type Notifier interface {
	Publish(event string, data any) error
}

// RowUpdate is the payload published to the presentation layer whenever the
// registry's caches change.
type RowUpdate struct {
	Gateways    []types.DeviceRecord `json:"gateways"`
	Nodes       []types.DeviceRecord `json:"nodes"`
	Controllers []types.DeviceRecord `json:"controllers"`
	Sensors     []types.DeviceRecord `json:"sensors"`
}

const RowUpdateEvent = "device-rows"

type registry struct {
	gateways    map[string]types.DeviceRecord
	nodes       map[string]types.DeviceRecord
	controllers map[string]types.DeviceRecord
	sensors     map[string]types.DeviceRecord

	messenger messaging.MsgContext
	notifier  Notifier

	cmds chan func()
	quit chan struct{}
}

func New(messenger messaging.MsgContext, notifier Notifier) DeviceRegistry {
	r := &registry{
		gateways:    map[string]types.DeviceRecord{},
		nodes:       map[string]types.DeviceRecord{},
		controllers: map[string]types.DeviceRecord{},
		sensors:     map[string]types.DeviceRecord{},
		messenger:   messenger,
		notifier:    notifier,
		cmds:        make(chan func()),
		quit:        make(chan struct{}),
	}

	go r.run()

	return r
}

func (r *registry) run() {
	for {
		select {
		case cmd := <-r.cmds:
			cmd()
		case <-r.quit:
			return
		}
	}
}

func (r *registry) Shutdown() {
	select {
	case <-r.quit:
	default:
		close(r.quit)
	}
}

// exec runs fn on the worker goroutine and waits for it to complete.
func (r *registry) exec(ctx context.Context, fn func()) error {
	done := make(chan struct{})

	select {
	case r.cmds <- func() { fn(); close(done) }:
	case <-r.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *registry) HandleGatewayEvent(ctx context.Context, evt types.GatewayEvent) error {
	var gatewayChanged bool
	var nodeIDs []string

	err := r.exec(ctx, func() {
		gatewayChanged = r.upsertGateway(evt)
		nodeIDs = r.upsertNodesFromGatewayEvent(evt)
	})
	if err != nil {
		return err
	}

	if !gatewayChanged && len(nodeIDs) == 0 {
		return nil
	}

	if gatewayChanged {
		r.messenger.PublishOnTopic(ctx, &types.GatewayUpdated{GatewayID: evt.ID, Timestamp: time.Now().UTC()})
	}

	if len(nodeIDs) > 0 {
		r.messenger.PublishOnTopic(ctx, &types.NodesUpdated{GatewayID: evt.ID, NodeIDs: nodeIDs, Timestamp: time.Now().UTC()})
	}

	return r.publishRows(ctx)
}

// cacheKey folds an identifier for cache membership so that ids differing
// only in case never yield duplicate entries. Records keep the id as
// reported.
func cacheKey(id string) string {
	return strings.ToLower(id)
}

// upsertGateway merges a gateway event into the gateway cache. Events
// without an identifier have no effect.
func (r *registry) upsertGateway(evt types.GatewayEvent) bool {
	var existing *types.DeviceRecord
	if cur, ok := r.gateways[cacheKey(evt.ID)]; ok {
		existing = &cur
	}

	rec, ok := normalizeGateway(evt, existing)
	if !ok {
		return false
	}

	r.gateways[cacheKey(rec.ID)] = rec

	return true
}

// upsertNodesFromGatewayEvent merges each embedded node into the all-nodes
// cache and recomputes sub-cache membership. Elements without an identifier
// are dropped while the rest of the batch is still processed. An event with
// no embedded nodes leaves previously known nodes untouched.
func (r *registry) upsertNodesFromGatewayEvent(evt types.GatewayEvent) []string {
	if len(evt.Nodes) == 0 {
		return nil
	}

	updated := make([]string, 0, len(evt.Nodes))

	for _, n := range evt.Nodes {
		var existing *types.DeviceRecord
		if cur, ok := r.nodes[cacheKey(resolveNodeID(n))]; ok {
			existing = &cur
		}

		rec, ok := normalizeNode(n, existing, evt.ID)
		if !ok {
			continue
		}

		rec.Subtype = classifyRecord(rec)
		r.storeNode(rec)

		updated = append(updated, rec.ID)
	}

	return updated
}

// storeNode inserts a node into the all-nodes cache and moves it into the
// sub-cache its freshly computed subtype selects. Membership is always
// removed from both sub-caches first so a reclassified node never lingers
// where it no longer belongs.
func (r *registry) storeNode(rec types.DeviceRecord) {
	key := cacheKey(rec.ID)

	r.nodes[key] = rec

	delete(r.controllers, key)
	delete(r.sensors, key)

	switch rec.Subtype {
	case types.SubtypeController:
		r.controllers[key] = rec
	case types.SubtypeSensor:
		r.sensors[key] = rec
	}
}

// Hydrate rebuilds all caches from previously materialized rows, such as a
// snapshot rendered before a restart. Each node row is reclassified from its
// identity fields so the sub-caches are repopulated correctly. Hydrating
// twice with the same rows leaves the caches unchanged.
func (r *registry) Hydrate(ctx context.Context, gateways, nodes []types.DeviceRecord) error {
	err := r.exec(ctx, func() {
		r.gateways = map[string]types.DeviceRecord{}
		r.nodes = map[string]types.DeviceRecord{}
		r.controllers = map[string]types.DeviceRecord{}
		r.sensors = map[string]types.DeviceRecord{}

		for _, row := range gateways {
			if row.ID == "" {
				continue
			}
			r.gateways[cacheKey(row.ID)] = row
		}

		for _, row := range nodes {
			if row.ID == "" {
				continue
			}
			row.Subtype = classifyRecord(row)
			r.storeNode(row)
		}
	})
	if err != nil {
		return err
	}

	return r.publishRows(ctx)
}

// MarkStale downgrades every record whose last heartbeat is older than the
// threshold, or absent, or unparseable. The sweep never upgrades: records
// only come back online through a fresh transport event. The returned slice
// holds the records that transitioned from online to offline on this sweep.
func (r *registry) MarkStale(ctx context.Context, threshold time.Duration) ([]types.DeviceRecord, error) {
	downgraded := []types.DeviceRecord{}
	now := time.Now().UTC()

	err := r.exec(ctx, func() {
		for id, rec := range r.gateways {
			if !isStale(rec, now, threshold) {
				continue
			}
			wasOnline := rec.Status == types.StatusOnline
			rec.Status = types.StatusOffline
			if wasOnline {
				downgraded = append(downgraded, rec)
			}
			r.gateways[id] = rec
		}

		for _, rec := range r.nodes {
			if !isStale(rec, now, threshold) {
				continue
			}
			wasOnline := rec.Status == types.StatusOnline
			rec.Status = types.StatusOffline
			if wasOnline {
				downgraded = append(downgraded, rec)
			}
			r.storeNode(rec)
		}
	})
	if err != nil {
		return nil, err
	}

	if len(downgraded) > 0 {
		if err := r.publishRows(ctx); err != nil {
			return downgraded, err
		}
	}

	return downgraded, nil
}

func isStale(rec types.DeviceRecord, now time.Time, threshold time.Duration) bool {
	lastSeen, ok := parseTimestamp(rec.LastSeen)
	if !ok {
		return true
	}
	return now.Sub(lastSeen) > threshold
}

func (r *registry) Gateways(ctx context.Context) ([]types.DeviceRecord, error) {
	return r.snapshot(ctx, func() map[string]types.DeviceRecord { return r.gateways })
}

func (r *registry) Nodes(ctx context.Context) ([]types.DeviceRecord, error) {
	return r.snapshot(ctx, func() map[string]types.DeviceRecord { return r.nodes })
}

func (r *registry) Controllers(ctx context.Context) ([]types.DeviceRecord, error) {
	return r.snapshot(ctx, func() map[string]types.DeviceRecord { return r.controllers })
}

func (r *registry) Sensors(ctx context.Context) ([]types.DeviceRecord, error) {
	return r.snapshot(ctx, func() map[string]types.DeviceRecord { return r.sensors })
}

func (r *registry) snapshot(ctx context.Context, cache func() map[string]types.DeviceRecord) ([]types.DeviceRecord, error) {
	var rows []types.DeviceRecord

	err := r.exec(ctx, func() {
		rows = project(cache())
	})
	if err != nil {
		return nil, err
	}

	return rows, nil
}

// ControllerStates derives live controller identities for reconciliation
// with control URL configuration. When nodeID is non-empty only controllers
// that are, or belong to, that node are included.
func (r *registry) ControllerStates(ctx context.Context, nodeID string) ([]types.ControllerState, error) {
	states := []types.ControllerState{}

	err := r.exec(ctx, func() {
		for _, rec := range project(r.controllers) {
			if nodeID != "" && !strings.EqualFold(rec.ID, nodeID) && !strings.EqualFold(rec.GatewayID, nodeID) {
				continue
			}

			kind := rec.Type
			if kind == "control" || kind == "controller" {
				// the class marker carries no input kind information
				kind = ""
			}

			states = append(states, types.ControllerState{
				ID:     rec.ID,
				Name:   rec.Name,
				Device: rec.ExternalID,
				Kind:   kind,
			})
		}
	})
	if err != nil {
		return nil, err
	}

	return states, nil
}

func (r *registry) publishRows(ctx context.Context) error {
	if r.notifier == nil {
		return nil
	}

	var update RowUpdate

	err := r.exec(ctx, func() {
		update = RowUpdate{
			Gateways:    project(r.gateways),
			Nodes:       project(r.nodes),
			Controllers: project(r.controllers),
			Sensors:     project(r.sensors),
		}
	})
	if err != nil {
		return err
	}

	return r.notifier.Publish(RowUpdateEvent, update)
}
