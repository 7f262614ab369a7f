package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nace/ddrmount/internal/system"
)

// LoopManager handles loop device operations
type LoopManager struct {
	runner system.Runner
}

// NewLoopManager creates a new loop manager
func NewLoopManager(runner system.Runner) *LoopManager {
	return &LoopManager{
		runner: runner,
	}
}

// Attach attaches an image read-only to the first free loop device, using
// the sector size of the imaged disk, and returns the loop device path.
func (m *LoopManager) Attach(path string, sectorSize uint32) (string, error) {
	output, err := m.runner.RunOutput("losetup",
		"-f", "--show", "-r",
		"-b", strconv.FormatUint(uint64(sectorSize), 10),
		path,
	)
	if err != nil {
		return "", fmt.Errorf("failed to attach loop device: %w", err)
	}

	loopDev := strings.TrimSpace(output)
	if loopDev == "" {
		return "", fmt.Errorf("losetup did not report a loop device for %s", path)
	}
	return loopDev, nil
}

// Detach detaches a loop device
func (m *LoopManager) Detach(device string) error {
	err := m.runner.Run("losetup", "-d", device)
	if err != nil {
		return fmt.Errorf("failed to detach loop device %s: %w", device, err)
	}
	return nil
}
