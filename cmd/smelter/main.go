package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smelter-project/smelter/internal/build"
	"github.com/smelter-project/smelter/internal/config"
	"github.com/smelter-project/smelter/internal/libvirt"
	"github.com/smelter-project/smelter/internal/media"
	"github.com/smelter-project/smelter/internal/mold"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "smelter",
	Short: "Smelter - reproducible OS image builder",
	Long: `Smelter builds OS disk images by scripting unattended installs inside
ephemeral virtual machines.

Each build boots the distribution's install media in a throwaway VM, drives
the installer over the virtual display, finishes configuration over SSH, and
leaves behind a qcow2 image ready to deploy.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

var (
	buildDebug    bool
	buildRecord   bool
	buildCacheDir string
	buildSocket   string
)

func init() {
	buildCmd.Flags().BoolVar(&buildDebug, "debug", false, "pause at an operator breakpoint before each install-script command")
	buildCmd.Flags().BoolVar(&buildRecord, "record", false, "write a screenshot after each install-script command")
	buildCmd.Flags().StringVar(&buildCacheDir, "cache-dir", "", "media cache directory (default: user cache dir)")
	buildCmd.Flags().StringVar(&buildSocket, "libvirt-socket", "", "libvirt socket path (default: system socket)")

	initCmd.Flags().StringVar(&initMold, "mold", "arch-linux", "mold for the starter config")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(moldsCmd)
}

var buildCmd = &cobra.Command{
	Use:   "build <smelter.yaml>",
	Short: "Build an image from a configuration file",
	Long: `Build a disk image from a YAML configuration file.

The configuration names the image, its disk size, and the alloy elements
(molds with overrides) that produce it. Each element is built in its own
ephemeral VM; the finished qcow2 lands in the configured output directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(args[0])
		if err != nil {
			return err
		}

		// Ctrl-C cancels the build; the guest is left where it was for
		// inspection.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := libvirt.ConnectWithContext(ctx, buildSocket, 5*time.Second)
		if err != nil {
			return fmt.Errorf("failed to connect to libvirt: %w", err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", closeErr)
			}
		}()

		cache, err := media.NewCache(buildCacheDir)
		if err != nil {
			return err
		}

		opts := build.Options{Debug: buildDebug, Record: buildRecord}
		for i, el := range cfg.Elements {
			name := cfg.Name
			if len(cfg.Elements) > 1 {
				name = fmt.Sprintf("%s-%d", cfg.Name, i)
			}

			worker, err := build.New(name, *cfg, el, client, cache, opts)
			if err != nil {
				return err
			}
			fmt.Printf("Building %s (mold %s, build %s)\n", name, el.Mold, worker.ID())
			if err := worker.Run(ctx); err != nil {
				return err
			}
			fmt.Printf("✓ Image %s built successfully\n", name)
		}
		return nil
	},
}

var initMold string

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Write a starter smelter.yaml",
	Long: `Write a starter configuration file into the current directory.

The name defaults to the current directory's base name. Refuses to overwrite
an existing smelter.yaml.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		} else {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to determine working directory: %w", err)
			}
			name = filepath.Base(wd)
		}

		if err := config.WriteStarter("smelter.yaml", name, initMold); err != nil {
			return err
		}
		fmt.Printf("✓ Wrote smelter.yaml for image %s\n", name)
		return nil
	},
}

var moldsCmd = &cobra.Command{
	Use:   "molds",
	Short: "List available molds",
	Long:  `List the molds that can appear as alloy elements in a configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range mold.Names() {
			fmt.Println(name)
		}
		return nil
	},
}
