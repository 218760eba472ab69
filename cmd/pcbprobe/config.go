package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mats19/pcb-bridge/machine"
	"gopkg.in/yaml.v3"
)

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

// Profile holds the probe motion and default grid for a machine.
type Profile struct {
	Probe machine.ProbeOptions `yaml:"probe"`
	Grid  machine.GridConfig   `yaml:"grid"`
}

func defaultProfile() Profile {
	opt := machine.DefaultProbeOptions()
	opt.Timeout = 60 * time.Second
	return Profile{
		Probe: opt,
		Grid:  machine.DefaultGridConfig(),
	}
}

// loadProfile reads a YAML profile. Fields missing from the file keep their
// defaults. An empty name returns the defaults.
func loadProfile(name string) (Profile, error) {
	p := defaultProfile()
	if name == "" {
		return p, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return p, err
	}
	err = yaml.Unmarshal(data, &p)
	if err != nil {
		return p, fmt.Errorf("parse %s: %w", name, err)
	}
	err = p.Probe.Validate()
	if err != nil {
		return p, fmt.Errorf("%s: probe: %w", name, err)
	}
	err = p.Grid.Validate()
	if err != nil {
		return p, fmt.Errorf("%s: grid: %w", name, err)
	}
	return p, nil
}
