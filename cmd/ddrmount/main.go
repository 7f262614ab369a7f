package main

import (
	"os"
	"sync"

	"github.com/nace/ddrmount/internal/cli"
	"github.com/nace/ddrmount/internal/device"
	"github.com/nace/ddrmount/internal/registry"
	"github.com/nace/ddrmount/internal/system"
	"github.com/nace/ddrmount/internal/ui"
	"github.com/spf13/cobra"
)

var (
	verbose     bool
	quiet       bool
	noColor     bool
	debug       bool
	registryDir string

	ctx  *cli.GlobalContext
	once sync.Once
)

func main() {
	err := rootCmd.Execute()
	os.Exit(cli.Report(ctx.Logger, err))
}

var rootCmd = &cobra.Command{
	Use:   "ddrmount",
	Short: "ddrmount - mount ddrescue images with I/O errors for unread areas",
	Long: `ddrmount mounts a disk image recovered with GNU ddrescue so that every
area the mapfile marks as not rescued returns a real I/O error.

The mapfile is converted into a device-mapper table: rescued ranges map
linearly onto a read-only loop device over the image, everything else maps
onto the error target.`,
	Version:       "0.1.0",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Update context components with parsed flag values
		once.Do(func() {
			ctx.Executor = system.NewExecutor(debug)
			ctx.Logger = ui.NewLogger(verbose, quiet, noColor)
			ctx.RegistryDir = registryDir

			ctx.LoopManager = device.NewLoopManager(ctx.Executor)
			ctx.MapperMgr = device.NewMapperManager(ctx.Executor)
		})
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (suppress non-error output)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode (show commands)")
	rootCmd.PersistentFlags().StringVar(&registryDir, "registry-dir", registry.DefaultDir(),
		"Directory holding the device registry (env "+registry.EnvDir+")")

	// Create initial context with default values
	// Will be updated in PersistentPreRun with parsed flag values
	ctx = cli.NewGlobalContext(false, false, false, false, registry.DefaultDir())

	// Register commands
	rootCmd.AddCommand(cli.NewMountCommand(ctx))
	rootCmd.AddCommand(cli.NewUnmountCommand(ctx))
	rootCmd.AddCommand(cli.NewUnmountAllCommand(ctx))
	rootCmd.AddCommand(cli.NewListCommand(ctx))

	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
