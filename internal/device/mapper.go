// Package device drives the external tools that back a mount: losetup for
// the loop device over the image and dmsetup for the error-injecting
// mapper device on top of it.
package device

import (
	"fmt"
	"strings"

	"github.com/nace/ddrmount/internal/registry"
	"github.com/nace/ddrmount/internal/system"
)

// MapperName returns the device-mapper name used for a registry slot
func MapperName(slot uint32) string {
	return fmt.Sprintf("%s%d", registry.DeviceName, slot)
}

// MapperManager handles device-mapper operations
type MapperManager struct {
	runner system.Runner
}

// NewMapperManager creates a new mapper manager
func NewMapperManager(runner system.Runner) *MapperManager {
	return &MapperManager{
		runner: runner,
	}
}

// Create creates a mapper device from a table passed on stdin
func (m *MapperManager) Create(name, table string) error {
	if _, err := m.runner.RunInput(table, "dmsetup", "create", name); err != nil {
		return fmt.Errorf("failed to create mapper device %s: %w", name, err)
	}
	return nil
}

// Remove removes a mapper device
func (m *MapperManager) Remove(name string) error {
	if err := m.runner.Run("dmsetup", "remove", name); err != nil {
		return fmt.Errorf("failed to remove mapper device %s: %w", name, err)
	}
	return nil
}

// Active returns the names of all mapper devices currently known to
// device-mapper.
func (m *MapperManager) Active() (map[string]bool, error) {
	output, err := m.runner.RunOutput("dmsetup", "ls")
	if err != nil {
		return nil, fmt.Errorf("failed to list mapper devices: %w", err)
	}
	return parseDmsetupList(output), nil
}

// parseDmsetupList extracts device names from dmsetup ls output
// Format: "ddrm1\t(253:0)" or "ddrm1\t(253, 0)" per line, or "No devices found"
func parseDmsetupList(output string) map[string]bool {
	names := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasPrefix(fields[1], "(") {
			continue
		}
		names[fields[0]] = true
	}
	return names
}
