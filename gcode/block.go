package gcode

import (
	"fmt"
	"strings"
)

// A Block is a single line of G-code.
type Block []Word

func (b Block) Arg(w byte) (bool, float64) {
	for _, g := range b {
		if g.W == w {
			return true, g.Arg
		}
	}
	return false, 0
}
func (b Block) SetArg(w byte, val float64) {
	for i, g := range b {
		if g.W == w {
			b[i].Arg = val
			return
		}
	}
}

// Args returns the words that do not belong to a modal group (axis words, P, S, ...).
func (b Block) Args() Block {
	res := make(Block, 0, len(b))
	for _, g := range b {
		if g.ModalGroup() == ModalGroupNone {
			res = append(res, g)
		}
	}
	return res
}
func (b Block) Clone() Block {
	c := make(Block, len(b))
	copy(c, b)
	return c
}

// Validate checks that every word is a letter, no parameter word repeats
// and no two words share a modal group.
func (b Block) Validate() error {
	var seenWord [26]bool
	seenGroup := make(map[ModalGroup]Word, len(b))

	for _, w := range b {
		if !w.IsValid() {
			return fmt.Errorf("invalid word %q", w.W)
		}
		if w.W != 'G' && w.W != 'M' {
			if seenWord[w.W-'A'] {
				return fmt.Errorf("word %c repeated in block", w.W)
			}
			seenWord[w.W-'A'] = true
		}
		g := w.ModalGroup()
		if g == ModalGroupNone {
			continue
		}
		if prev, ok := seenGroup[g]; ok {
			return fmt.Errorf("%s and %s are in the same modal group", prev, w)
		}
		seenGroup[g] = w
	}
	return nil
}

// String renders the block in compact form, e.g. "G0X12.5Y15".
func (b Block) String() string {
	var sb strings.Builder
	for _, w := range b {
		sb.WriteString(w.String())
	}
	return sb.String()
}

// Format renders blocks as newline-terminated lines.
func Format(blocks []Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		sb.WriteString(b.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
