package cli

import (
	"github.com/nace/ddrmount/internal/fault"
	"github.com/nace/ddrmount/internal/registry"
	"github.com/nace/ddrmount/internal/system"
	"github.com/spf13/cobra"
)

// UnmountCommand handles unmounting of a single image
type UnmountCommand struct {
	ctx *GlobalContext
}

// NewUnmountCommand creates the unmount command
func NewUnmountCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &UnmountCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "unmount <device>",
		Short: "Unmount an image mounted by ddrmount",
		Long: `Remove the mapper device (for example ddrm1 or /dev/mapper/ddrm1)
and detach the loop device of an image mounted by ddrmount.`,
		Args: cobra.ExactArgs(1),
		RunE: runE(cmd.Run),
	}

	return cobraCmd
}

// Run executes the unmount command
func (c *UnmountCommand) Run(cmd *cobra.Command, args []string) error {
	if err := system.RequireRoot(); err != nil {
		return err
	}

	if err := c.ctx.CheckDependencies(); err != nil {
		return err
	}

	return c.execute(args[0])
}

func (c *UnmountCommand) execute(name string) (err error) {
	reg, err := c.ctx.OpenRegistry(registry.ReadWrite)
	if err != nil {
		return err
	}
	defer c.ctx.CloseRegistry(reg, &err)

	dev, ok := reg.Lookup(name)
	if !ok {
		return fault.New(fault.Unmount, "Unmount error: Unable to find device %s", name)
	}

	return teardown(c.ctx, reg, dev)
}

// teardown removes the mapper device, detaches the loop device and drops
// the record of dev from reg.
func teardown(ctx *GlobalContext, reg *registry.Registry, dev registry.Device) error {
	// Step 1: Remove mapper device
	ctx.Logger.Info("Removing mapper device %s...", dev.DMMountPoint)
	if err := ctx.MapperMgr.Remove(dev.DMMountPoint); err != nil {
		return fault.New(fault.Unmount, "Unable to unmount device %s: %w", dev.DMMountPoint, err)
	}

	// Step 2: Detach loop device
	ctx.Logger.Info("Detaching loop device %s...", dev.ImageMountPoint)
	if err := ctx.LoopManager.Detach(dev.ImageMountPoint); err != nil {
		// The mapper device is gone, so the record goes too; a loop device
		// left attached can be detached by hand.
		ctx.Logger.Warning("Failed to detach loop device: %v", err)
	}

	if err := reg.Remove(dev.Slot); err != nil {
		return err
	}

	ctx.Logger.Success("Unmounted %s", dev.MapperPath())
	ctx.Logger.Info("Image: %s", dev.DisplayImage())
	return nil
}
