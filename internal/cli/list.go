package cli

import (
	"fmt"
	"io"

	"github.com/nace/ddrmount/internal/registry"
	"github.com/nace/ddrmount/internal/ui"
	"github.com/spf13/cobra"
)

// ListCommand handles listing of mounted images
type ListCommand struct {
	ctx     *GlobalContext
	verbose bool
	json    bool
}

// NewListCommand creates the list command
func NewListCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &ListCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "list",
		Short: "List mounted images and their mapper devices",
		Args:  cobra.NoArgs,
		RunE:  runE(cmd.Run),
	}

	cobraCmd.Flags().BoolVarP(&cmd.verbose, "verbose", "v", false, "Verbose output")
	cobraCmd.Flags().BoolVarP(&cmd.json, "json", "j", false, "JSON output")

	return cobraCmd
}

// Run executes the list command
func (c *ListCommand) Run(cmd *cobra.Command, args []string) error {
	return c.execute(cmd.OutOrStdout())
}

func (c *ListCommand) execute(w io.Writer) (err error) {
	reg, err := c.ctx.OpenRegistry(registry.ReadOnly)
	if err != nil {
		return err
	}
	defer c.ctx.CloseRegistry(reg, &err)

	if c.json {
		return ui.PrintJSON(w, reg.Devices())
	}

	if reg.Len() == 0 {
		c.ctx.Logger.Info("No images mounted")
		return nil
	}

	if c.verbose {
		return c.printVerbose(w, reg.Devices())
	}
	return registry.WriteList(w, reg.All())
}

func (c *ListCommand) printVerbose(w io.Writer, devices []registry.Device) error {
	active, err := c.ctx.MapperMgr.Active()
	if err != nil {
		c.ctx.Logger.Warning("Unable to query device-mapper: %v", err)
	}

	for i, dev := range devices {
		if i > 0 {
			fmt.Fprintln(w)
		}

		fmt.Fprintf(w, "Image: %s\n", dev.DisplayImage())
		fmt.Fprintf(w, "  Mapper: %s\n", dev.MapperPath())
		fmt.Fprintf(w, "  Loop Device: %s\n", dev.ImageMountPoint)
		fmt.Fprintf(w, "  Slot: %d\n", dev.Slot)

		switch {
		case active == nil:
			fmt.Fprintln(w, "  State: unknown")
		case active[dev.DMMountPoint]:
			fmt.Fprintln(w, "  State: active")
		default:
			fmt.Fprintln(w, "  State: missing")
		}
	}
	return nil
}
