package cli

import (
	"fmt"
	"io"

	"github.com/nace/ddrmount/internal/device"
	"github.com/nace/ddrmount/internal/fault"
	"github.com/nace/ddrmount/internal/mapfile"
	"github.com/nace/ddrmount/internal/registry"
	"github.com/nace/ddrmount/internal/system"
	"github.com/spf13/cobra"
)

// MountCommand handles image mounting
type MountCommand struct {
	ctx       *GlobalContext
	out       io.Writer
	image     string
	mapFile   string
	blockSize uint32
}

// NewMountCommand creates the mount command
func NewMountCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &MountCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "mount --image <image> --map <mapfile>",
		Short: "Mount an image, presenting unrecovered areas as I/O errors",
		Long: `Mount a disk image through device-mapper using its ddrescue mapfile.

Bad sectors and any areas not yet read or skipped by ddrescue are turned
into I/O errors instead of reading back as zeroes.`,
		Args: cobra.NoArgs,
		RunE: runE(cmd.Run),
	}

	cobraCmd.Flags().StringVarP(&cmd.image, "image", "i", "", "Path to disk image")
	cobraCmd.Flags().StringVarP(&cmd.mapFile, "map", "m", "", "Path to ddrescue mapfile")
	cobraCmd.Flags().Uint32VarP(&cmd.blockSize, "block-size", "b", mapfile.SectorSize, "Sector size of the disk that was imaged")
	_ = cobraCmd.MarkFlagRequired("image")
	_ = cobraCmd.MarkFlagRequired("map")

	return cobraCmd
}

// Run executes the mount command
func (c *MountCommand) Run(cmd *cobra.Command, args []string) error {
	c.out = cmd.OutOrStdout()

	if err := system.RequireRoot(); err != nil {
		return err
	}

	if err := c.ctx.CheckDependencies(); err != nil {
		return err
	}

	c.ctx.Logger.Debug("mount image: %s, map: %s, block size: %d", c.image, c.mapFile, c.blockSize)

	if c.blockSize == 0 || c.blockSize%mapfile.SectorSize != 0 {
		c.ctx.Logger.Debug("Sector size not a multiple of %d: %d", mapfile.SectorSize, c.blockSize)
		return fault.New(fault.SectorSize, "Sector size is not a multiple of %d", mapfile.SectorSize)
	}

	image, err := system.ResolveImagePath(c.image)
	if err != nil {
		return err
	}
	c.ctx.Logger.Debug("Full path of image: %s", image)

	// Parse before touching any device so a broken mapfile leaves nothing behind
	m, err := mapfile.ReadFile(c.mapFile)
	if err != nil {
		return err
	}
	c.ctx.Logger.Debug("Mapfile has %d records", len(m.Records))

	return c.execute(image, m)
}

func (c *MountCommand) execute(image string, m *mapfile.Map) (err error) {
	reg, err := c.ctx.OpenRegistry(registry.ReadWrite)
	if err != nil {
		return err
	}
	defer c.ctx.CloseRegistry(reg, &err)

	cleanup := system.NewCleanupStack()
	defer func() {
		if cerr := cleanup.Execute(); cerr != nil {
			c.ctx.Logger.Debug("Cleanup errors occurred: %v", cerr)
		}
	}()

	slot := reg.AllocateSlot()
	name := device.MapperName(slot)

	// Step 1: Attach loop device
	c.ctx.Logger.Info("Setting up loop device...")
	loopDev, err := c.ctx.LoopManager.Attach(image, c.blockSize)
	if err != nil {
		return fault.New(fault.Mount, "Unable to mount image: %w", err)
	}
	c.ctx.Logger.Debug("Image attached at %s", loopDev)
	cleanup.Add(func() error {
		return c.ctx.LoopManager.Detach(loopDev)
	})

	// Step 2: Create the mapper device over the loop device
	c.ctx.Logger.Info("Creating mapper device %s...", name)
	if err := c.ctx.MapperMgr.Create(name, m.Table(loopDev)); err != nil {
		return fault.New(fault.Mount, "Unable to mount image: %w", err)
	}
	cleanup.Add(func() error {
		return c.ctx.MapperMgr.Remove(name)
	})

	// Step 3: Record the device; the rollback stays armed until it is on disk
	reg.Insert(slot, image, loopDev, name)
	if err := reg.Save(); err != nil {
		_ = reg.Remove(slot)
		c.ctx.Logger.Error("Unable to record %s%s, removing it", registry.DMLocation, name)
		return err
	}

	// Success! Clear cleanup
	cleanup.Clear()

	fmt.Fprintf(c.out, "%s is mounted at %s%s\n", image, registry.DMLocation, name)
	return nil
}
