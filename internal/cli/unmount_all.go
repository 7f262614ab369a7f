package cli

import (
	"github.com/nace/ddrmount/internal/registry"
	"github.com/nace/ddrmount/internal/system"
	"github.com/nace/ddrmount/internal/ui"
	"github.com/spf13/cobra"
)

// UnmountAllCommand handles unmounting of every registered image
type UnmountAllCommand struct {
	ctx     *GlobalContext
	yes     bool
	confirm func(prompt string) bool
}

// NewUnmountAllCommand creates the unmount-all command
func NewUnmountAllCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &UnmountAllCommand{ctx: ctx, confirm: confirmInteractive}

	cobraCmd := &cobra.Command{
		Use:   "unmount-all",
		Short: "Unmount all images mounted by ddrmount",
		Args:  cobra.NoArgs,
		RunE:  runE(cmd.Run),
	}

	cobraCmd.Flags().BoolVarP(&cmd.yes, "yes", "y", false, "Do not ask for confirmation")

	return cobraCmd
}

// confirmInteractive asks only when someone is there to answer
func confirmInteractive(prompt string) bool {
	if !ui.StdinIsTerminal() {
		return true
	}
	return ui.PromptConfirm(prompt)
}

// Run executes the unmount-all command
func (c *UnmountAllCommand) Run(cmd *cobra.Command, args []string) error {
	if err := system.RequireRoot(); err != nil {
		return err
	}

	if err := c.ctx.CheckDependencies(); err != nil {
		return err
	}

	return c.execute()
}

func (c *UnmountAllCommand) execute() (err error) {
	reg, err := c.ctx.OpenRegistry(registry.ReadWrite)
	if err != nil {
		return err
	}
	defer c.ctx.CloseRegistry(reg, &err)

	// Teardown mutates the registry, so work from a snapshot
	devices := reg.Devices()
	if len(devices) == 0 {
		c.ctx.Logger.Info("No images mounted")
		return nil
	}

	if !c.yes && !c.confirm("Unmount all images mounted by ddrmount?") {
		c.ctx.Logger.Info("Aborted")
		return nil
	}

	var first error
	for _, dev := range devices {
		if err := teardown(c.ctx, reg, dev); err != nil {
			c.ctx.Logger.Error("%v", err)
			if first == nil {
				first = err
			}
		}
	}

	return first
}
