package deviceregistry

import (
	"testing"

	"github.com/diwise/iot-gateway-registry/pkg/types"
	"github.com/matryer/is"
)

func TestClassifySensorBeatsController(t *testing.T) {
	is := is.New(t)

	is.Equal(types.SubtypeSensor, classify("sensor-controller"))
	is.Equal(types.SubtypeSensor, classify("control", "sensor"))
}

func TestClassifyController(t *testing.T) {
	is := is.New(t)

	is.Equal(types.SubtypeController, classify("control"))
	is.Equal(types.SubtypeController, classify("", "RelayController-01"))
}

func TestClassifyPlain(t *testing.T) {
	is := is.New(t)

	is.Equal(types.SubtypePlain, classify("node-07", "Hallway"))
	is.Equal(types.SubtypePlain, classify())
}

func TestClassifyRecordUsesIdentityFields(t *testing.T) {
	is := is.New(t)

	is.Equal(types.SubtypeSensor, classifyRecord(types.DeviceRecord{ID: "n1", Name: "Temp Sensor"}))
	is.Equal(types.SubtypeController, classifyRecord(types.DeviceRecord{ID: "control-9"}))
	is.Equal(types.SubtypePlain, classifyRecord(types.DeviceRecord{ID: "n1", Name: "Hallway"}))
}
