package controlurls

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/diwise/iot-gateway-registry/internal/pkg/application/deviceregistry"
	"github.com/diwise/iot-gateway-registry/internal/pkg/infrastructure/storage"
	"github.com/diwise/iot-gateway-registry/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/google/uuid"
)

var ErrControlURLNotFound = fmt.Errorf("control url not found")

// ControlURLStorage is the persistence boundary for configured control URLs.
type ControlURLStorage interface {
	Query(ctx context.Context, conditions ...storage.ConditionFunc) (types.Collection[types.ControlURLItem], error)
	Add(ctx context.Context, item types.ControlURLItem) error
	Update(ctx context.Context, item types.ControlURLItem) error
	Delete(ctx context.Context, id string) error
}

// ControlURLService reconciles persisted control URL configuration with the
// live controllers the registry knows about, and mediates configuration
// changes issued by the application layer.
type ControlURLService interface {
	MergedList(ctx context.Context, nodeID string) ([]types.ControlURLItem, error)
	Create(ctx context.Context, item types.ControlURLItem) (types.ControlURLItem, error)
	Update(ctx context.Context, id string, item types.ControlURLItem) error
	Delete(ctx context.Context, id string) error
}

type service struct {
	storage  ControlURLStorage
	registry deviceregistry.DeviceRegistry

	mu         sync.Mutex
	lastMerged map[string][]types.ControlURLItem
}

func New(storage ControlURLStorage, registry deviceregistry.DeviceRegistry) ControlURLService {
	return &service{
		storage:    storage,
		registry:   registry,
		lastMerged: map[string][]types.ControlURLItem{},
	}
}

// MergedList loads the configured items for a node and merges live
// controller identity into them. When the configuration cannot be loaded the
// last successfully merged list is returned alongside the error, so a
// transient storage failure does not blank out the view.
func (s *service) MergedList(ctx context.Context, nodeID string) ([]types.ControlURLItem, error) {
	log := logging.GetFromContext(ctx)

	collection, err := s.storage.Query(ctx, storage.WithNodeID(nodeID))
	if err != nil {
		log.Error("could not load control urls", "node_id", nodeID, "err", err.Error())
		return s.lastKnown(nodeID), fmt.Errorf("failed to load control urls: %w", err)
	}

	states, err := s.registry.ControllerStates(ctx, nodeID)
	if err != nil {
		return s.lastKnown(nodeID), err
	}

	merged := Reconcile(states, collection.Data)

	for i := range merged {
		if merged[i].NodeID == "" {
			merged[i].NodeID = nodeID
		}
	}

	s.mu.Lock()
	s.lastMerged[nodeID] = merged
	s.mu.Unlock()

	return merged, nil
}

func (s *service) lastKnown(nodeID string) []types.ControlURLItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMerged[nodeID]
}

func (s *service) Create(ctx context.Context, item types.ControlURLItem) (types.ControlURLItem, error) {
	if item.ID == "" {
		if item.ControllerID != "" {
			item.ID = item.ControllerID
		} else {
			item.ID = uuid.NewString()
		}
	}

	if item.InputType == "" {
		item.InputType = defaultInputType
	}

	err := s.storage.Add(ctx, item)
	if err != nil {
		return types.ControlURLItem{}, err
	}

	return item, nil
}

func (s *service) Update(ctx context.Context, id string, item types.ControlURLItem) error {
	item.ID = id

	err := s.storage.Update(ctx, item)
	if errors.Is(err, storage.ErrNoRows) {
		return ErrControlURLNotFound
	}

	return err
}

func (s *service) Delete(ctx context.Context, id string) error {
	err := s.storage.Delete(ctx, id)
	if errors.Is(err, storage.ErrNoRows) {
		return ErrControlURLNotFound
	}

	return err
}
