package spjs

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DataFrame is serial output from a port.
type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}

// CmdStatus reports the progress of a queued command, e.g. "Queued",
// "Write", "Complete" or "WipedQueue".
type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	Data       []string `json:"D"`
	ID         string   `json:"Id"`
}

type ErrorMessage struct {
	Error string
}

// Disconnected is delivered when the websocket connection drops. The client
// keeps reconnecting.
type Disconnected struct {
	Err error
}

type SerialPortList struct {
	SerialPorts []SerialPort
}

type SerialPort struct {
	Name            string
	Friendly        string
	IsOpen          bool
	Baud            int
	BufferAlgorithm string
}

// JSON is the payload of a "sendjson" command.
type JSON struct {
	Port string `json:"P"`
	Data []Data
}

type Data struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

// envelope holds the fields that tell message kinds apart.
type envelope struct {
	Error       *string
	SerialPorts json.RawMessage
	Type        json.RawMessage
	D           json.RawMessage
}

// Decode parses one server frame into *DataFrame, *CmdStatus,
// *SerialPortList or *ErrorMessage.
func Decode(data []byte) (interface{}, error) {
	var env envelope
	err := json.Unmarshal(data, &env)
	if err != nil {
		return nil, err
	}

	var v interface{}
	switch {
	case env.Error != nil:
		return &ErrorMessage{Error: *env.Error}, nil
	case env.SerialPorts != nil:
		v = &SerialPortList{}
	case env.Type != nil:
		v = &CmdStatus{}
	case env.D != nil:
		v = &DataFrame{}
	default:
		return nil, errors.New("unknown message: " + string(data))
	}
	err = json.Unmarshal(data, v)
	if err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}
