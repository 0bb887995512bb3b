package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	relayBinary       = "url-relay-server"
	relayStartTimeout = 10 * time.Second
	relayPollInterval = 200 * time.Millisecond
)

var (
	relayClient = &http.Client{Timeout: 1 * time.Second}

	errRelayDown = errors.New("relay not reachable")
)

// relayState is what the relay reports about itself on /health and /ready.
type relayState struct {
	Version string `json:"version"`
	Active  int    `json:"active"`
	Ready   bool   `json:"-"`
}

// queryRelay queries /health and then /ready. A relay that answers /health but
// not /ready is up with its journal still unavailable.
func queryRelay(base string) (*relayState, error) {
	resp, err := relayClient.Get(base + "/health")
	if err != nil {
		return nil, errRelayDown
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errRelayDown
	}

	var state relayState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("unexpected /health payload: %w", err)
	}

	ready, err := relayClient.Get(base + "/ready")
	if err != nil {
		return &state, nil
	}
	ready.Body.Close()
	state.Ready = ready.StatusCode == http.StatusOK
	return &state, nil
}

// relayBinaryCandidates lists where a relay binary is looked for, in order.
func relayBinaryCandidates() []string {
	var candidates []string
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), relayBinary))
	}
	if p, err := exec.LookPath(relayBinary); err == nil {
		candidates = append(candidates, p)
	}
	home, _ := os.UserHomeDir()
	return append(candidates,
		filepath.Join(xdg.BinHome, relayBinary),
		filepath.Join(home, "go", "bin", relayBinary),
		filepath.Join("/usr/local/bin", relayBinary),
	)
}

func findRelayBinary() (string, error) {
	for _, p := range relayBinaryCandidates() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s binary not found", relayBinary)
}

// relayArgs builds the command line for a spawned relay.
func relayArgs(configPath string) []string {
	if configPath == "" {
		return nil
	}
	return []string{"-config", configPath}
}

// spawnRelay starts the relay detached from this terminal.
func spawnRelay(configPath string) error {
	bin, err := findRelayBinary()
	if err != nil {
		return err
	}

	cmd := exec.Command(bin, relayArgs(configPath)...)
	setSysProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start relay: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// waitForRelay polls until the relay reports ready or timeout elapses.
func waitForRelay(base string, timeout, interval time.Duration) (*relayState, error) {
	deadline := time.Now().Add(timeout)
	var last *relayState

	for time.Now().Before(deadline) {
		state, err := queryRelay(base)
		if err == nil {
			if state.Ready {
				return state, nil
			}
			last = state
		}
		time.Sleep(interval)
	}

	if last != nil {
		return nil, fmt.Errorf("relay %s is up but its journal is not ready after %v", last.Version, timeout)
	}
	return nil, fmt.Errorf("relay did not start within %v", timeout)
}

// ensureServerRunning starts a local relay when none answers at serverURL.
func ensureServerRunning() error {
	state, err := queryRelay(serverURL)
	switch {
	case err == nil && state.Ready:
		return nil
	case err == nil:
		fmt.Fprintln(os.Stderr, "Relay is up, waiting for its journal...")
	default:
		fmt.Fprintln(os.Stderr, "Relay not running, starting...")
		if err := spawnRelay(relayConfig); err != nil {
			return err
		}
	}

	state, err = waitForRelay(serverURL, relayStartTimeout, relayPollInterval)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Relay %s ready (%d active)\n", state.Version, state.Active)
	return nil
}
