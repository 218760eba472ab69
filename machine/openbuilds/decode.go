package openbuilds

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mats19/pcb-bridge/machine"
)

// DecodeProbeResult converts a prbResult payload into a probe event.
//
// state may be a boolean or a number; any nonzero number counts as contact.
func DecodeProbeResult(v any) (machine.Event, error) {
	m, err := asMap(v)
	if err != nil {
		return nil, err
	}

	ok, err := truthy(m["state"])
	if err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	if !ok {
		return machine.ProbeFailed{Reason: "no contact"}, nil
	}

	z, err := number(m["z"])
	if err != nil {
		return nil, fmt.Errorf("z: %w", err)
	}
	return machine.ProbeCompleted{Z: z}, nil
}

func asMap(v any) (map[string]any, error) {
	switch v := v.(type) {
	case map[string]any:
		return v, nil
	case string:
		return decodeJSON([]byte(v))
	case []byte:
		return decodeJSON(v)
	case nil:
		return nil, errors.New("empty probe result")
	}
	return nil, fmt.Errorf("unexpected probe result %T", v)
}

func decodeJSON(data []byte) (map[string]any, error) {
	var m map[string]any
	err := json.Unmarshal(data, &m)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func truthy(v any) (bool, error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case nil:
		return false, errors.New("missing")
	}
	f, err := number(v)
	if err != nil {
		return false, err
	}
	return f != 0, nil
}

func number(v any) (float64, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(v, 64)
	case nil:
		return 0, errors.New("missing")
	}
	return 0, fmt.Errorf("not a number: %T", v)
}
