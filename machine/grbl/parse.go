package grbl

import (
	"errors"
	"strconv"
	"strings"

	"github.com/mats19/pcb-bridge/coord"
	"github.com/mats19/pcb-bridge/machine"
)

// Status is the last machine state reported by a `?` status query.
type Status struct {
	State string      `json:"state"`
	MPos  coord.Point `json:"mpos"`
	WCO   coord.Point `json:"wco"`
}

// WPos is the position in work coordinates.
func (s Status) WPos() coord.Point { return s.MPos.Sub(s.WCO) }

func parseCoords(data string) (p coord.Point, err error) {
	parts := strings.Split(data, ",")
	if len(parts) != 3 {
		return p, errors.New("invalid number of elements")
	}
	p.X, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return p, err
	}
	p.Y, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return p, err
	}
	p.Z, err = strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return p, err
	}
	return p, nil
}

// IsProbeReport reports whether line carries a probe result.
func IsProbeReport(line string) bool {
	return strings.Contains(line, "[PRB:")
}

// ParseProbe decodes the `[PRB:x,y,z:state]` field of a status line.
//
// A state of 0 means the probe did not make contact and is returned as
// machine.ProbeFailed.
func ParseProbe(line string) (machine.Event, error) {
	start := strings.Index(line, "[PRB:")
	if start == -1 {
		return nil, errors.New("no probe report in: " + line)
	}
	data := line[start+len("[PRB:"):]
	end := strings.IndexByte(data, ']')
	if end == -1 {
		return nil, errors.New("unterminated probe report: " + line)
	}
	parts := strings.Split(data[:end], ":")
	if len(parts) != 2 {
		return nil, errors.New("malformed probe report: " + line)
	}

	p, err := parseCoords(parts[0])
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(parts[1]) == "0" {
		return machine.ProbeFailed{Reason: "no contact"}, nil
	}
	return machine.ProbeCompleted{Z: p.Z}, nil
}

func parseStatus(stat Status, data string) (*Status, error) {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "<")
	data = strings.TrimSuffix(data, ">")
	parts := strings.Split(data, "|")
	stat.State = parts[0]
	var err error
	for _, s := range parts[1:] {
		sParts := strings.SplitN(s, ":", 2)
		if len(sParts) != 2 {
			continue
		}
		switch sParts[0] {
		case "MPos":
			stat.MPos, err = parseCoords(sParts[1])
		case "WCO":
			stat.WCO, err = parseCoords(sParts[1])
		}
		if err != nil {
			return nil, err
		}
	}
	return &stat, nil
}

// classify turns one line from the controller into a session event, if it
// is one.
func classify(line string) (machine.Event, bool) {
	switch {
	case IsProbeReport(line):
		e, err := ParseProbe(line)
		if err != nil {
			return machine.ProbeFailed{Reason: err.Error()}, true
		}
		return e, true
	case strings.HasPrefix(line, "ALARM"):
		return machine.ProbeFailed{Reason: line}, true
	case strings.HasPrefix(line, "Grbl"):
		return machine.ChannelLost{Err: ErrGrblReset}, true
	}
	return nil, false
}
