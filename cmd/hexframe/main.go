// hexframe - drives the frame manager with a simulated paging workload
package main

import (
	"fmt"
	"os"

	"github.com/sibexico/HexFrame/vm"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "hexframe",
		Short: "Physical frame manager with clock eviction and swap",
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	var (
		configPath string
		opts       simulateOptions
	)

	var simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run concurrent contexts that fault pages in and out of a small pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("frames") {
				cfg.FrameCount = opts.frames
			}

			logger := vm.NewLogger(os.Stderr, cfg.LogLevel)
			report, err := runSimulation(cmd.Context(), cfg, opts, logger)
			if err != nil {
				return err
			}

			fmt.Printf("Simulation completed\n")
			fmt.Printf("  Contexts: %d, pages per context: %d\n", opts.contexts, opts.pages)
			fmt.Printf("  Faults: %d, swap-ins: %d\n", report.faults, report.swapIns)
			fmt.Printf("  Evictions: %d, swap slots in use: %d\n", report.evictions, report.swapUsed)
			return nil
		},
	}

	simulateCmd.Flags().StringVar(&configPath, "config", "", "JSON config file (defaults plus HEXFRAME_* env when empty)")
	simulateCmd.Flags().Uint32Var(&opts.frames, "frames", 0, "Override the configured frame count")
	simulateCmd.Flags().IntVar(&opts.contexts, "contexts", 4, "Number of concurrent execution contexts")
	simulateCmd.Flags().IntVar(&opts.pages, "pages", 64, "Virtual pages touched by each context")
	simulateCmd.Flags().IntVar(&opts.accesses, "accesses", 2000, "Page accesses per context")
	simulateCmd.Flags().Int64Var(&opts.seed, "seed", 1, "Random seed for the access pattern")

	var configCmd = &cobra.Command{
		Use:   "config [path]",
		Short: "Write the default configuration as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := vm.DefaultConfig().SaveToFile(args[0]); err != nil {
				return err
			}
			fmt.Printf("Wrote default configuration to %s\n", args[0])
			return nil
		},
	}

	rootCmd.AddCommand(simulateCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(path string) (*vm.Config, error) {
	if path == "" {
		cfg := vm.LoadConfigFromEnv()
		return cfg, cfg.Validate()
	}
	cfg, err := vm.LoadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	return cfg.ApplyEnv(), nil
}
