package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iskrim46/ogurec/internal/codec"
)

func TestModuleSplitJoin(t *testing.T) {
	b := JoinModule(ModText, []byte{1, 2})
	assert.Equal(t, []byte{1, 0, 1, 2}, b)

	id, body, err := SplitModule(b)
	require.NoError(t, err)
	assert.Equal(t, ModText, id)
	assert.Equal(t, []byte{1, 2}, body)

	_, _, err = SplitModule([]byte{1})
	assert.ErrorIs(t, err, codec.ErrTruncated)
}

func TestEncodeModule(t *testing.T) {
	in := TextCommand{Command: "Say", Text: "hi"}
	b, err := EncodeModule(&in)
	require.NoError(t, err)

	var outer NetModule
	require.NoError(t, codec.Decode(b, &outer))
	assert.Equal(t, ModText, outer.Module)

	var out TextCommand
	require.NoError(t, codec.Decode(outer.Data, &out))
	assert.Equal(t, in, out)
}

func TestModuleRecords(t *testing.T) {
	bc := TextBroadcast{Author: 255, Text: Literal("welcome"), Color: RGB{255, 240, 20}}
	b, err := codec.Encode(&bc)
	require.NoError(t, err)
	var gotBC TextBroadcast
	require.NoError(t, codec.Decode(b, &gotBC))
	assert.Equal(t, bc, gotBC)

	ping := Ping{Position: Vector2{X: 16.5, Y: -8}}
	b, err = codec.Encode(&ping)
	require.NoError(t, err)
	assert.Len(t, b, 8)
	var gotPing Ping
	require.NoError(t, codec.Decode(b, &gotPing))
	assert.Equal(t, ping, gotPing)

	assert.Equal(t, "Text", ModText.String())
	assert.Equal(t, "module(99)", ModuleID(99).String())
}

func TestModulesListing(t *testing.T) {
	ids := Modules()
	require.Len(t, ids, 11)
	assert.Equal(t, ModLiquid, ids[0])
	assert.Equal(t, ModCreativePowerPermissions, ids[10])
	assert.Equal(t, "Text", ModText.String())
	assert.Equal(t, "module(99)", ModuleID(99).String())
}
