package client

import (
	"context"
	"testing"

	test "github.com/diwise/service-chassis/pkg/test/http"
	"github.com/diwise/service-chassis/pkg/test/http/expects"
	"github.com/diwise/service-chassis/pkg/test/http/response"
	"github.com/matryer/is"
)

func TestGatewaysSendsBearerToken(t *testing.T) {
	is := is.New(t)

	mockedService := test.NewMockServiceThat(
		test.Expects(is,
			expects.RequestPath("/api/v0/gateways"),
			expects.RequestMethod("GET"),
			expects.RequestHeaderContains("Authorization", "Bearer testtoken"),
		),
		test.Returns(
			response.ContentType("application/json"),
			response.Code(200),
			response.Body([]byte(gatewaysResponse)),
		),
	)
	defer mockedService.Close()

	c := NewRegistryClient(mockedService.URL(), "testtoken")

	gateways, err := c.Gateways(context.Background())
	is.NoErr(err)
	is.Equal(1, len(gateways))
	is.Equal("gw-01", gateways[0].ID)
}

func TestControlURLsQueriesByNodeID(t *testing.T) {
	is := is.New(t)

	mockedService := test.NewMockServiceThat(
		test.Expects(is,
			expects.RequestPath("/api/v0/controlurls"),
			expects.RequestMethod("GET"),
		),
		test.Returns(
			response.ContentType("application/json"),
			response.Code(200),
			response.Body([]byte(controlURLsResponse)),
		),
	)
	defer mockedService.Close()

	c := NewRegistryClient(mockedService.URL(), "")

	items, err := c.ControlURLs(context.Background(), "abc")
	is.NoErr(err)
	is.Equal(1, len(items))
	is.Equal("relay1", items[0].Name)
}

func TestNodesFailsOnServerError(t *testing.T) {
	is := is.New(t)

	mockedService := test.NewMockServiceThat(
		test.Expects(is,
			expects.RequestPath("/api/v0/nodes"),
		),
		test.Returns(
			response.Code(500),
		),
	)
	defer mockedService.Close()

	c := NewRegistryClient(mockedService.URL(), "")

	_, err := c.Nodes(context.Background())
	is.True(err != nil)
}

const gatewaysResponse string = `{"meta":{"totalRecords":1,"count":1},"data":[{"id":"gw-01","name":"Gateway gw-01","status":"online"}]}`

const controlURLsResponse string = `{"data":[{"id":"abc","controller_id":"abc","node_id":"abc","name":"relay1","url":"https://host/api/Relay1","input_type":"digital"}]}`
