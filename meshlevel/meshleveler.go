package meshlevel

import (
	"math"

	"github.com/mats19/pcb-bridge/coord"
	"github.com/mats19/pcb-bridge/gcode"
)

// MeshLeveler is a gcode.Reader that adjusts Z by the surface offset under
// each move. Long moves are split so the tool follows the surface.
type MeshLeveler struct {
	granularity float64
	offsetter   ZOffsetter

	// pending holds the remaining pieces of a split move.
	pending []gcode.Block

	splitVM *gcode.VM
	levelVM *gcode.VM

	src gcode.Reader
}

type Config struct {
	ZOffsetter ZOffsetter

	// Granularity is the longest XY distance, in mm, a single move may
	// cover. Zero disables splitting.
	Granularity float64

	MPos, WCO coord.Point

	Reader gcode.Reader
}

func New(cfg Config) *MeshLeveler {
	l := &MeshLeveler{
		granularity: cfg.Granularity,
		offsetter:   cfg.ZOffsetter,
		splitVM:     gcode.NewVM(),
		levelVM:     gcode.NewVM(),
		src:         cfg.Reader,
	}
	if l.offsetter == nil {
		l.offsetter = flatSurface{}
	}
	for _, vm := range []*gcode.VM{l.splitVM, l.levelVM} {
		vm.SetMPos(cfg.MPos)
		vm.SetWCO(cfg.WCO)
	}
	return l
}

// units returns the size of one program unit in mm.
func units(vm *gcode.VM) float64 {
	if vm.Inches() {
		return 25.4
	}
	return 1
}

// withAxis returns a copy of b with word w set to v, appending it if absent.
func withAxis(b gcode.Block, w byte, v float64) gcode.Block {
	c := b.Clone()
	if has, _ := c.Arg(w); has {
		c.SetArg(w, v)
		return c
	}
	return append(c, gcode.Word{W: w, Arg: v})
}

// move runs b on vm and returns the work position before and after.
func move(vm *gcode.VM, b gcode.Block) (from, to coord.Point, err error) {
	from = vm.WPos()
	err = vm.Run(b)
	return from, vm.WPos(), err
}

func (l *MeshLeveler) Read() (gcode.Block, error) {
	b, err := l.next()
	if err != nil {
		return nil, err
	}

	from, to, err := move(l.levelVM, b)
	if err != nil {
		return nil, err
	}
	if from.Equal(to) {
		return b, nil
	}

	// moves that end off the mesh are left as-is
	ok, offset := l.offsetter.OffsetZ(to.X, to.Y)
	if !ok {
		return b, nil
	}
	unit := units(l.levelVM)

	if !l.levelVM.RelativeMotion() {
		if offset == 0 {
			return b, nil
		}
		return withAxis(b, 'Z', (to.Z+offset)/unit), nil
	}

	ok, prev := l.offsetter.OffsetZ(from.X, from.Y)
	if !ok || prev == offset {
		return b, nil
	}
	_, dz := b.Arg('Z')
	return withAxis(b, 'Z', dz+(offset-prev)/unit), nil
}

func (l *MeshLeveler) next() (gcode.Block, error) {
	if len(l.pending) > 0 {
		b := l.pending[0]
		l.pending = l.pending[1:]
		return b, nil
	}

	b, err := l.src.Read()
	if err != nil {
		return nil, err
	}
	from, to, err := move(l.splitVM, b)
	if err != nil {
		return nil, err
	}
	if l.granularity <= 0 || from.Equal(to) {
		return b, nil
	}
	dist := from.DistanceXY(to.X, to.Y)
	if dist <= l.granularity {
		return b, nil
	}

	pieces := l.split(b, from, to, int(math.Ceil(dist/l.granularity-coord.Epsilon)))
	l.pending = pieces[1:]
	return pieces[0], nil
}

// split breaks the move b from one work position to another into n equal
// moves. In absolute mode the last piece is b itself.
func (l *MeshLeveler) split(b gcode.Block, from, to coord.Point, n int) []gcode.Block {
	step := to.Sub(from).Div(float64(n))
	unit := units(l.splitVM)
	pieces := make([]gcode.Block, 0, n)

	if l.splitVM.RelativeMotion() {
		piece := b.Clone()
		piece.SetArg('X', step.X/unit)
		piece.SetArg('Y', step.Y/unit)
		piece.SetArg('Z', step.Z/unit)
		for i := 0; i < n; i++ {
			pieces = append(pieces, piece)
		}
		return pieces
	}

	for i := 1; i < n; i++ {
		p := from.Add(step.Mul(float64(i)))
		piece := b.Clone()
		piece.SetArg('X', p.X/unit)
		piece.SetArg('Y', p.Y/unit)
		piece.SetArg('Z', p.Z/unit)
		pieces = append(pieces, piece)
	}
	return append(pieces, b)
}
