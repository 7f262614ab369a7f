package cli

import (
	"errors"

	"github.com/nace/ddrmount/internal/device"
	"github.com/nace/ddrmount/internal/fault"
	"github.com/nace/ddrmount/internal/registry"
	"github.com/nace/ddrmount/internal/system"
	"github.com/nace/ddrmount/internal/ui"
	"github.com/spf13/cobra"
)

// GlobalContext holds shared resources for all commands
type GlobalContext struct {
	Executor    *system.Executor
	Logger      *ui.Logger
	LoopManager *device.LoopManager
	MapperMgr   *device.MapperManager
	RegistryDir string
}

// NewGlobalContext creates a new global context
func NewGlobalContext(verbose, quiet, noColor, debug bool, registryDir string) *GlobalContext {
	executor := system.NewExecutor(debug)
	logger := ui.NewLogger(verbose, quiet, noColor)

	return &GlobalContext{
		Executor:    executor,
		Logger:      logger,
		LoopManager: device.NewLoopManager(executor),
		MapperMgr:   device.NewMapperManager(executor),
		RegistryDir: registryDir,
	}
}

// CheckDependencies checks for required system commands
func (ctx *GlobalContext) CheckDependencies() error {
	deps := []string{
		"losetup",
		"dmsetup",
	}
	if err := ctx.Executor.CheckDependencies(deps); err != nil {
		return fault.Wrap(fault.Mount, err)
	}
	return nil
}

// OpenRegistry opens the device registry. A read-write registry must be
// closed with CloseRegistry so it is written back.
func (ctx *GlobalContext) OpenRegistry(mode registry.Mode) (*registry.Registry, error) {
	reg, err := registry.Open(ctx.RegistryDir, mode)
	if err != nil {
		return nil, err
	}
	ctx.Logger.Debug("Configuration location: %s", reg.Path())
	return reg, nil
}

// CloseRegistry closes reg and folds its error into *errp. When the
// command already failed the close error is only logged.
func (ctx *GlobalContext) CloseRegistry(reg *registry.Registry, errp *error) {
	err := reg.Close()
	if err == nil {
		ctx.Logger.Debug("Configuration written")
		return
	}
	if *errp == nil {
		*errp = err
		return
	}
	ctx.Logger.Error("%v", err)
}

// runE adapts a command body to cobra, tagging untyped errors as unknown
// so that only cobra's own usage errors reach Report untyped.
func runE(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if err == nil {
			return nil
		}
		var f *fault.Error
		if !errors.As(err, &f) {
			return fault.Wrap(fault.Unknown, err)
		}
		return err
	}
}
