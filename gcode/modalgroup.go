package gcode

// ModalGroup identifies the group a word belongs to. At most one word from
// each group may appear in a block.
type ModalGroup byte

const (
	ModalGroupNone ModalGroup = iota
	ModalGroupNonModal
	ModalGroupMotion
	ModalGroupPolar
	ModalGroupPlaneSelection
	ModalGroupDistanceMode
	ModalGroupArcDistanceMode
	ModalGroupFeedRateMode
	ModalGroupUnits
	ModalGroupCutterCompensationMode
	ModalGroupToolLength
	ModalGroupCannedCyclesMode
	ModalGroupCoordinateSystem
	ModalGroupControlMode
	ModalGroupSpindleMode
	ModalGroupLatheDiameterMode
	ModalGroupStopping
	ModalGroupToolChange
	ModalGroupSpindle
	ModalGroupCoolant
	ModalGroupOverride
	ModalGroupFeedRate
)

type code struct {
	w   byte
	arg float64
}

var modalGroups = map[code]ModalGroup{}

func register(w byte, g ModalGroup, args ...float64) {
	for _, a := range args {
		modalGroups[code{w, a}] = g
	}
}

func init() {
	register('G', ModalGroupNonModal, 4, 10, 28, 30, 53, 92, 92.1, 92.2, 92.3)
	register('G', ModalGroupMotion, 0, 1, 2, 3, 33, 38.2, 38.3, 38.4, 38.5, 73, 76, 80, 81, 82, 83, 84, 85, 86, 87, 88, 89)
	register('G', ModalGroupPolar, 15, 16)
	register('G', ModalGroupPlaneSelection, 17, 18, 19, 17.1, 18.1, 19.1)
	register('G', ModalGroupDistanceMode, 90, 91)
	register('G', ModalGroupArcDistanceMode, 90.1, 91.1)
	register('G', ModalGroupFeedRateMode, 93, 94, 95)
	register('G', ModalGroupUnits, 20, 21)
	register('G', ModalGroupCutterCompensationMode, 40, 41, 41.1, 42, 42.1)
	register('G', ModalGroupToolLength, 43, 43.1, 49)
	register('G', ModalGroupCannedCyclesMode, 98, 99)
	register('G', ModalGroupCoordinateSystem, 54, 55, 56, 57, 58, 59, 59.1, 59.2, 59.3)
	register('G', ModalGroupControlMode, 61, 61.1, 64)
	register('G', ModalGroupSpindleMode, 96, 97)
	register('G', ModalGroupLatheDiameterMode, 7, 8)

	register('M', ModalGroupStopping, 0, 1, 2, 30, 60)
	register('M', ModalGroupToolChange, 6, 61)
	register('M', ModalGroupSpindle, 3, 4, 5)
	register('M', ModalGroupCoolant, 7, 8, 9)
	register('M', ModalGroupOverride, 48, 49, 50, 51, 52, 53)
}

// ModalGroup returns the group of w. Feed rate words form their own group;
// axis and parameter words return ModalGroupNone.
func (w Word) ModalGroup() ModalGroup {
	if w.W == 'F' {
		return ModalGroupFeedRate
	}
	return modalGroups[code{w.W, w.Arg}]
}
