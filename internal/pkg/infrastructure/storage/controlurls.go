package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/diwise/iot-gateway-registry/pkg/types"
	"github.com/jackc/pgx/v5"
)

func (s *Storage) Add(ctx context.Context, item types.ControlURLItem) error {
	if item.ID == "" {
		return ErrNoID
	}

	args := pgx.NamedArgs{
		"control_url_id": item.ID,
		"controller_id":  item.ControllerID,
		"node_id":        item.NodeID,
		"name":           item.Name,
		"url":            item.URL,
		"input_type":     item.InputType,
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO control_urls (control_url_id, controller_id, node_id, name, url, input_type)
		VALUES (@control_url_id, @controller_id, @node_id, @name, @url, @input_type)
	`, args)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	return nil
}

func (s *Storage) Update(ctx context.Context, item types.ControlURLItem) error {
	if item.ID == "" {
		return ErrNoID
	}

	args := pgx.NamedArgs{
		"control_url_id": item.ID,
		"controller_id":  item.ControllerID,
		"node_id":        item.NodeID,
		"name":           item.Name,
		"url":            item.URL,
		"input_type":     item.InputType,
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE control_urls
		SET controller_id = @controller_id, node_id = @node_id, name = @name, url = @url, input_type = @input_type, modified_on = CURRENT_TIMESTAMP
		WHERE control_url_id = @control_url_id AND deleted = FALSE
	`, args)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}

	return nil
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoID
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE control_urls
		SET deleted = TRUE, deleted_on = CURRENT_TIMESTAMP
		WHERE control_url_id = @control_url_id AND deleted = FALSE
	`, pgx.NamedArgs{"control_url_id": id})
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}

	return nil
}

func (s *Storage) Query(ctx context.Context, conditions ...ConditionFunc) (types.Collection[types.ControlURLItem], error) {
	condition := &Condition{}
	for _, f := range conditions {
		f(condition)
	}

	args := condition.NamedArgs()
	where := condition.Where()
	offsetLimit, offset, limit := condition.OffsetLimit()

	query := fmt.Sprintf(`
		SELECT control_url_id, controller_id, node_id, name, url, input_type, count(*) OVER () AS count
		FROM control_urls
		%s
		ORDER BY node_id ASC, name ASC, control_url_id ASC
		%s
	`, where, offsetLimit)

	rows, err := s.pool.Query(ctx, query, args)
	if err != nil {
		return types.Collection[types.ControlURLItem]{}, fmt.Errorf("%w: %w", ErrQueryRow, err)
	}

	var item types.ControlURLItem
	var count int64

	items := make([]types.ControlURLItem, 0)

	_, err = pgx.ForEachRow(rows, []any{&item.ID, &item.ControllerID, &item.NodeID, &item.Name, &item.URL, &item.InputType, &count}, func() error {
		items = append(items, item)
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Collection[types.ControlURLItem]{}, ErrNoRows
		}
		return types.Collection[types.ControlURLItem]{}, err
	}

	if limit == 0 {
		limit = len(items)
	}

	return types.Collection[types.ControlURLItem]{
		Data:       items,
		Count:      uint64(len(items)),
		Offset:     uint64(offset),
		Limit:      uint64(limit),
		TotalCount: uint64(count),
	}, nil
}
