package gcode

import (
	"fmt"

	"github.com/mats19/pcb-bridge/coord"
)

const mmPerInch = 25.4

// supported lists the G and M codes the VM understands: the subset emitted
// by pcb2gcode and by the prober.
var supported = map[code]bool{}

func init() {
	for _, g := range []float64{0, 1, 4, 17, 20, 21, 38.2, 53, 54, 61, 64, 80, 90, 91, 94} {
		supported[code{'G', g}] = true
	}
	for _, m := range []float64{0, 1, 2, 3, 4, 5, 6, 8, 9, 30} {
		supported[code{'M', m}] = true
	}
}

// VM tracks machine position and modal state while interpreting G-code.
// Positions are in millimeters.
type VM struct {
	pos coord.Point
	wco coord.Point

	modes map[ModalGroup]float64
}

// NewVM returns a VM in Grbl's power-on state.
func NewVM() *VM {
	return &VM{modes: map[ModalGroup]float64{
		ModalGroupMotion:                 0,
		ModalGroupCoordinateSystem:       54,
		ModalGroupPlaneSelection:         17,
		ModalGroupDistanceMode:           90,
		ModalGroupArcDistanceMode:        91.1,
		ModalGroupFeedRateMode:           94,
		ModalGroupUnits:                  21,
		ModalGroupCutterCompensationMode: 40,
		ModalGroupToolLength:             49,
		ModalGroupStopping:               0,
		ModalGroupSpindle:                5,
		ModalGroupCoolant:                9,
	}}
}

func (vm *VM) Inches() bool         { return vm.modes[ModalGroupUnits] == 20 }
func (vm *VM) RelativeMotion() bool { return vm.modes[ModalGroupDistanceMode] == 91 }

// Mode returns the active code of a modal group.
func (vm *VM) Mode(g ModalGroup) float64 { return vm.modes[g] }

func (vm *VM) WPos() coord.Point     { return vm.pos.Sub(vm.wco) }
func (vm *VM) MPos() coord.Point     { return vm.pos }
func (vm *VM) WCO() coord.Point      { return vm.wco }
func (vm *VM) SetMPos(p coord.Point) { vm.pos = p }
func (vm *VM) SetWCO(p coord.Point)  { vm.wco = p }

func accepts(w Word) bool {
	switch w.W {
	case 'X', 'Y', 'Z', 'F', 'S', 'T', 'P', 'N':
		return true
	case 'G', 'M':
		return supported[code{w.W, w.Arg}]
	}
	return false
}

// target returns p with the axis words of b, scaled by mul, replacing its
// coordinates. ok is false if b has no axis words.
func target(p coord.Point, b Block, mul float64) (coord.Point, bool) {
	var ok bool
	for _, w := range b {
		switch w.W {
		case 'X':
			p.X = w.Arg * mul
		case 'Y':
			p.Y = w.Arg * mul
		case 'Z':
			p.Z = w.Arg * mul
		default:
			continue
		}
		ok = true
	}
	return p, ok
}

// Run applies one block.
func (vm *VM) Run(b Block) error {
	if err := b.Validate(); err != nil {
		return err
	}

	var machineCoords bool
	for _, w := range b {
		if !accepts(w) {
			return fmt.Errorf("unsupported code: %s", w)
		}
		switch g := w.ModalGroup(); g {
		case ModalGroupNone:
		case ModalGroupNonModal:
			machineCoords = machineCoords || w.Arg == 53
		default:
			vm.modes[g] = w.Arg
		}
	}

	mul := 1.0
	if vm.Inches() {
		mul = mmPerInch
	}

	switch {
	case vm.RelativeMotion():
		if d, ok := target(coord.Point{}, b, mul); ok {
			vm.pos = vm.pos.Add(d)
		}
	case machineCoords:
		if p, ok := target(vm.pos, b, 1); ok {
			vm.pos = p
		}
	default:
		if p, ok := target(vm.WPos(), b, mul); ok {
			vm.pos = p.Add(vm.wco)
		}
	}
	return nil
}
