package tally

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLine struct {
	Name  string  `json:"name"`
	Total float64 `json:"total,omitempty"`
}

type testReceipt struct {
	IsReceipt bool       `json:"isReceipt"`
	Store     string     `json:"storeName,omitempty"`
	Items     []testLine `json:"items,omitempty"`
	Count     int        `json:"count"`
	Paid      *struct {
		Method string `json:"method"`
	} `json:"payment,omitempty"`
	At       time.Time         `json:"at"`
	Meta     map[string]string `json:"meta"`
	Untagged string
	Skipped  string `json:"-"`
	hidden   string
}

func decodeSchema(t *testing.T, s *Schema) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(s.JSON(), &m))
	return m
}

func TestSchemaOf(t *testing.T) {
	m := decodeSchema(t, SchemaOf[testReceipt]())

	assert.Equal(t, "object", m["type"])
	props := m["properties"].(map[string]any)
	assert.Len(t, props, 8)
	assert.NotContains(t, props, "Skipped")
	assert.NotContains(t, props, "hidden")
	assert.Contains(t, props, "Untagged")

	assert.Equal(t, "boolean", props["isReceipt"].(map[string]any)["type"])
	assert.Equal(t, "integer", props["count"].(map[string]any)["type"])
	assert.Equal(t, "object", props["meta"].(map[string]any)["type"])

	at := props["at"].(map[string]any)
	assert.Equal(t, "string", at["type"])
	assert.Equal(t, "date-time", at["format"])

	items := props["items"].(map[string]any)
	assert.Equal(t, "array", items["type"])
	line := items["items"].(map[string]any)
	assert.Equal(t, []any{"name", "total"}, line["required"])

	payment := props["payment"].(map[string]any)
	assert.Equal(t, "object", payment["type"])
	assert.Equal(t, []any{"method"}, payment["required"])
}

func TestSchemaRequiresEveryProperty(t *testing.T) {
	m := decodeSchema(t, SchemaOf[testLine]())
	assert.Equal(t, []any{"name", "total"}, m["required"])
}

func TestSchemaDescribe(t *testing.T) {
	s := SchemaOf[testReceipt]().
		Describe("storeName", "Name of the shop").
		Describe("items.total", "Line total").
		Describe("payment.method", "cash or card").
		Describe("nope.nothing", "ignored")

	props := decodeSchema(t, s)["properties"].(map[string]any)
	assert.Equal(t, "Name of the shop", props["storeName"].(map[string]any)["description"])

	line := props["items"].(map[string]any)["items"].(map[string]any)
	assert.Equal(t, "Line total", line["properties"].(map[string]any)["total"].(map[string]any)["description"])

	payment := props["payment"].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, "cash or card", payment["method"].(map[string]any)["description"])
}

func TestSchemaResponse(t *testing.T) {
	rs := SchemaOf[testLine]().Response("line", "One line")
	assert.Equal(t, "line", rs.Name)
	assert.Equal(t, "One line", rs.Description)
	assert.JSONEq(t, string(SchemaOf[testLine]().JSON()), string(rs.Schema))
}

func TestSchemaOfNonStruct(t *testing.T) {
	m := decodeSchema(t, SchemaOf[[]string]())
	assert.Equal(t, "array", m["type"])
	assert.Equal(t, "string", m["items"].(map[string]any)["type"])
}
