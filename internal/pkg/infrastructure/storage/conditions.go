package storage

import (
	"context"
	"strconv"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/jackc/pgx/v5"
)

type ConditionFunc func(*Condition) *Condition

type Condition struct {
	ControlURLID string
	ControllerID string
	NodeID       string

	IncludeDeleted bool

	offset *int
	limit  *int
}

func (c Condition) OffsetLimit() (string, int, int) {
	offsetLimit := ""
	offset := 0
	limit := 0

	if c.offset != nil {
		offsetLimit += "OFFSET @offset "
		offset = *c.offset
	}
	if c.limit != nil {
		offsetLimit += "LIMIT @limit "
		limit = *c.limit
	}

	return offsetLimit, offset, limit
}

func (c Condition) NamedArgs() pgx.NamedArgs {
	args := pgx.NamedArgs{}

	if c.ControlURLID != "" {
		args["control_url_id"] = c.ControlURLID
	}
	if c.ControllerID != "" {
		args["controller_id"] = c.ControllerID
	}
	if c.NodeID != "" {
		args["node_id"] = c.NodeID
	}
	if c.offset != nil {
		args["offset"] = *c.offset
	}
	if c.limit != nil {
		args["limit"] = *c.limit
	}

	return args
}

func (c Condition) Where() string {
	where := []string{}

	if c.ControlURLID != "" {
		where = append(where, "control_url_id = @control_url_id")
	}

	if c.ControllerID != "" {
		where = append(where, "controller_id = @controller_id")
	}

	if c.NodeID != "" {
		where = append(where, "node_id = @node_id")
	}

	if !c.IncludeDeleted {
		where = append(where, "deleted=FALSE")
	}

	if len(where) == 0 {
		return ""
	}

	if len(where) == 1 {
		return "WHERE " + where[0]
	}

	return "WHERE " + strings.Join(where, " AND ")
}

func WithControlURLID(id string) ConditionFunc {
	return func(c *Condition) *Condition {
		c.ControlURLID = id
		return c
	}
}

func WithControllerID(controllerID string) ConditionFunc {
	return func(c *Condition) *Condition {
		c.ControllerID = controllerID
		return c
	}
}

func WithNodeID(nodeID string) ConditionFunc {
	return func(c *Condition) *Condition {
		c.NodeID = nodeID
		return c
	}
}

func WithOffset(offset int) ConditionFunc {
	return func(c *Condition) *Condition {
		c.offset = &offset
		return c
	}
}

func WithLimit(limit int) ConditionFunc {
	return func(c *Condition) *Condition {
		c.limit = &limit
		return c
	}
}

func WithDeleted() ConditionFunc {
	return func(c *Condition) *Condition {
		c.IncludeDeleted = true
		return c
	}
}

func ParseConditions(ctx context.Context, params map[string][]string) []ConditionFunc {
	log := logging.GetFromContext(ctx)

	conditions := make([]ConditionFunc, 0)

	for k, v := range params {
		switch strings.ToLower(k) {
		case "node_id":
			conditions = append(conditions, WithNodeID(v[0]))
		case "controller_id":
			conditions = append(conditions, WithControllerID(v[0]))
		case "limit":
			limit, _ := strconv.Atoi(v[0])
			conditions = append(conditions, WithLimit(limit))
		case "offset":
			offset, _ := strconv.Atoi(v[0])
			conditions = append(conditions, WithOffset(offset))
		default:
			log.Debug("unknown query parameter", "param", k, "value", v[0])
		}
	}

	return conditions
}
