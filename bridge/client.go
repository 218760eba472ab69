package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mats19/pcb-bridge/coord"
	"github.com/mats19/pcb-bridge/machine"
)

// DefaultURL is where the backend listens unless configured otherwise.
const DefaultURL = "http://127.0.0.1:8000/probe"

// Client is a Backend reached over HTTP.
type Client struct {
	base string
	hc   *http.Client
}

var _ Backend = &Client{}

// NewClient returns a client for the backend at baseURL. If hc is nil a
// client with a 30 second timeout is used.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: strings.TrimSuffix(baseURL, "/"), hc: hc}
}

func (c *Client) do(ctx context.Context, method, name string, body, out interface{}) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+"/"+name, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s: %s", method, name, resp.Status, e.Error)
		}
		return fmt.Errorf("%s %s: %s", method, name, resp.Status)
	}
	if out == nil {
		return nil
	}
	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, name, err)
	}
	return nil
}

func (c *Client) Latest(ctx context.Context) (*Snapshot, error) {
	var s Snapshot
	err := c.do(ctx, http.MethodGet, "latest", nil, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Reset(ctx context.Context) error {
	var s statusResponse
	err := c.do(ctx, http.MethodDelete, "reset", nil, &s)
	if err != nil {
		return err
	}
	if s.Status != StatusSuccess {
		return fmt.Errorf("reset: unexpected status %q", s.Status)
	}
	return nil
}

func (c *Client) Simulate(ctx context.Context, cfg machine.GridConfig) (*Simulation, error) {
	var s Simulation
	err := c.do(ctx, http.MethodPost, "simulate", cfg, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Save implements machine.Persister.
func (c *Client) Save(ctx context.Context, cfg machine.GridConfig, points []coord.Point) (string, error) {
	var s saveResponse
	err := c.do(ctx, http.MethodPost, "save", saveRequest{Config: cfg, Points: points}, &s)
	if err != nil {
		return "", err
	}
	return s.VizGCode, nil
}
