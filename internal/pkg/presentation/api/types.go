package api

import (
	"encoding/json"

	"github.com/diwise/iot-gateway-registry/pkg/types"
)

type meta struct {
	TotalRecords uint64  `json:"totalRecords"`
	Offset       *uint64 `json:"offset,omitempty"`
	Limit        *uint64 `json:"limit,omitempty"`
	Count        uint64  `json:"count"`
}

type ApiResponse struct {
	Meta *meta `json:"meta,omitempty"`
	Data any   `json:"data"`
}

func (r ApiResponse) Byte() []byte {
	b, _ := json.Marshal(r)
	return b
}

func newDeviceCollectionResponse(records []types.DeviceRecord) ApiResponse {
	return ApiResponse{
		Meta: &meta{
			TotalRecords: uint64(len(records)),
			Count:        uint64(len(records)),
		},
		Data: records,
	}
}
