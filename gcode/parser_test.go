package gcode

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_Read(t *testing.T) {
	p := NewParser(strings.NewReader(`%
( pcb2gcode 2.5.0 )
G21 ; metric
g00 z2.00000 ( retract )
G01 X12.5 Y-3 F200
`))

	b, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, Block{{W: 'G', Arg: 21}}, b)

	b, err = p.Read()
	require.NoError(t, err)
	assert.Equal(t, "G0Z2", b.String())

	b, err = p.Read()
	require.NoError(t, err)
	assert.Equal(t, "G1X12.5Y-3F200", b.String())

	_, err = p.Read()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 5, p.Line())
}

func TestParser_Invalid(t *testing.T) {
	_, err := Parse("G0 X1 Y\n")
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	blocks := []Block{
		{{W: 'G', Arg: 90}},
		{{W: 'G', Arg: 0}, {W: 'Z', Arg: 2}},
		{{W: 'G', Arg: 38.2}, {W: 'Z', Arg: -5}, {W: 'F', Arg: 100}},
	}
	assert.Equal(t, "G90\nG0Z2\nG38.2Z-5F100\n", Format(blocks))
}

func TestWord_String(t *testing.T) {
	assert.Equal(t, "X0", Word{W: 'X', Arg: -0.00001}.String())
	assert.Equal(t, "Z-0.1235", Word{W: 'Z', Arg: -0.12345}.String())
	assert.Equal(t, "Y15", Word{W: 'Y', Arg: 15.0}.String())
}
