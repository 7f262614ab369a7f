package system

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/nace/ddrmount/internal/fault"
)

// IsRoot checks if running as root
func IsRoot() bool {
	return unix.Geteuid() == 0
}

// RequireRoot ensures the program is running as root
func RequireRoot() error {
	if !IsRoot() {
		return fault.New(fault.NonRoot, "You must run as root.\nTry sudo %s", strings.Join(os.Args, " "))
	}
	return nil
}
