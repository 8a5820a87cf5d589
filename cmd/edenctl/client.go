package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Happy-Ferret/eden/mount"
)

// sendCommand opens the mount's ".eden/api" command channel, writes cmd
// as JSON, and decodes the ApiResponse written back — the CLI-side half
// of the protocol mount.FileSystem.executeApiCommand implements.
func sendCommand(mountPath string, cmd mount.ApiCommand) (*mount.ApiResponse, error) {
	apiPath := filepath.Join(mountPath, ".eden", "api")
	f, err := os.OpenFile(apiPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", apiPath, err)
	}
	defer f.Close()

	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		return nil, fmt.Errorf("writing command: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking api handle: %w", err)
	}
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var resp mount.ApiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if resp.ErrorCode != 0 {
		return &resp, fmt.Errorf("%s", resp.Message)
	}
	return &resp, nil
}
