package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pylaunch/pylaunch"
)

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	gf := &GlobalFlags{}
	root := &cobra.Command{
		Use:           "pylaunch",
		Short:         "Local Python runtime provisioner and dev-server supervisor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&gf.ConfigPath, "config", "c", "", "path to TOML config")

	root.AddCommand(serveCmd(gf))
	root.AddCommand(runtimeCmd(gf))
	root.AddCommand(envCmd(gf))
	root.AddCommand(runCmd(gf))
	root.AddCommand(sessionsCmd(gf))
	return root
}

// serveCmd runs the HTTP/WS API for the desktop UI until interrupted. The
// shutdown hook stops any supervised server before the process exits.
func serveCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the UI backend API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := openLauncher(gf.ConfigPath)
			if err != nil {
				return err
			}
			defer l.Close()
			cfg, err := pylaunch.LoadConfig(gf.ConfigPath)
			if err != nil {
				return err
			}
			srv := l.APIServer(cfg.Listen)
			fmt.Printf("pylaunch API listening on %s\n", cfg.Listen)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
			return nil
		},
	}
}

func runtimeCmd(gf *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "runtime", Short: "Manage Python runtimes"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List installed and detected runtimes",
		RunE: func(_ *cobra.Command, _ []string) error {
			l, err := openLauncher(gf.ConfigPath)
			if err != nil {
				return err
			}
			defer l.Close()
			cat := l.Runtimes()
			for _, m := range cat.Managed {
				fmt.Printf("managed  %-10s %s\n", m.Version, m.Path)
			}
			for _, s := range cat.System {
				fmt.Printf("system   %-10s %s\n", s.Version, s.Path)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "scan",
		Short: "Scan the host for Python installations",
		RunE: func(c *cobra.Command, _ []string) error {
			l, err := openLauncher(gf.ConfigPath)
			if err != nil {
				return err
			}
			defer l.Close()
			for _, rt := range l.ScanSystemRuntimes(c.Context()) {
				fmt.Printf("found %s at %s\n", rt.Version, rt.Path)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "download <version>",
		Short: "Download and install a runtime version",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			l, err := openLauncher(gf.ConfigPath)
			if err != nil {
				return err
			}
			defer l.Close()
			events, cancel := l.Subscribe()
			defer cancel()
			go func() {
				for evt := range events {
					if evt.Type == "download-progress" {
						fmt.Printf("\r%v", evt.Payload)
					}
				}
			}()
			exe, err := l.DownloadRuntime(c.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("\ninstalled %s -> %s\n", args[0], exe)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <version>",
		Short: "Remove a managed runtime and its install directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			l, err := openLauncher(gf.ConfigPath)
			if err != nil {
				return err
			}
			defer l.Close()
			return l.DeleteRuntime(args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "repair <version>",
		Short: "Re-run pip/virtualenv bootstrap for a managed runtime",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			l, err := openLauncher(gf.ConfigPath)
			if err != nil {
				return err
			}
			defer l.Close()
			return l.RepairRuntime(c.Context(), args[0])
		},
	})

	return cmd
}

func envCmd(gf *GlobalFlags) *cobra.Command {
	var version string
	cmd := &cobra.Command{Use: "env", Short: "Manage project environments"}
	cmd.PersistentFlags().StringVar(&version, "runtime", "", "runtime version (defaults to project preference)")

	cmd.AddCommand(&cobra.Command{
		Use:   "install <project-dir>",
		Short: "Create the environment and install dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			l, err := openLauncher(gf.ConfigPath)
			if err != nil {
				return err
			}
			defer l.Close()
			events, cancel := l.Subscribe()
			defer cancel()
			go func() {
				for evt := range events {
					if evt.Type == "log" {
						fmt.Println(evt.Payload)
					}
				}
			}()
			return l.InstallDependencies(c.Context(), args[0], version)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check <project-dir>",
		Short: "Check whether the environment can serve",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			l, err := openLauncher(gf.ConfigPath)
			if err != nil {
				return err
			}
			defer l.Close()
			ok, err := l.CheckDependencies(args[0], version)
			if err != nil {
				return err
			}
			if ok {
				fmt.Println("installed")
			} else {
				fmt.Println("not installed")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "info <project-dir>",
		Short: "Show the environment root for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			l, err := openLauncher(gf.ConfigPath)
			if err != nil {
				return err
			}
			defer l.Close()
			root, exists, err := l.EnvironmentInfo(args[0], version)
			if err != nil {
				return err
			}
			fmt.Printf("%s (exists: %v)\n", root, exists)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clean <project-dir>",
		Short: "Remove the project's environment entirely",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			l, err := openLauncher(gf.ConfigPath)
			if err != nil {
				return err
			}
			defer l.Close()
			return l.CleanEnvironment(args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "prefer <project-dir> <version>",
		Short: "Set the project's preferred runtime version",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			l, err := openLauncher(gf.ConfigPath)
			if err != nil {
				return err
			}
			defer l.Close()
			return l.SetProjectRuntime(args[0], args[1])
		},
	})

	return cmd
}

// runCmd starts the dev server in the foreground, mirrors its output, and
// stops it on interrupt.
func runCmd(gf *GlobalFlags) *cobra.Command {
	var version string
	var containerized bool
	cmd := &cobra.Command{
		Use:   "run <project-dir>",
		Short: "Run the project's dev server until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			l, err := openLauncher(gf.ConfigPath)
			if err != nil {
				return err
			}
			defer l.Close()

			events, cancel := l.Subscribe()
			defer cancel()
			go func() {
				for evt := range events {
					switch evt.Type {
					case "log":
						fmt.Println(evt.Payload)
					case "server-url":
						fmt.Printf("serving at %v\n", evt.Payload)
					}
				}
			}()

			mode := pylaunch.ModeNative
			if containerized {
				mode = pylaunch.ModeContainerized
			}
			if err := l.StartServer(c.Context(), mode, args[0], version); err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			return l.StopServer(context.Background())
		},
	}
	cmd.Flags().StringVar(&version, "runtime", "", "runtime version (defaults to project preference)")
	cmd.Flags().BoolVar(&containerized, "containerized", false, "run via the compose orchestration CLI")
	return cmd
}

func sessionsCmd(gf *GlobalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent server sessions",
		RunE: func(c *cobra.Command, _ []string) error {
			l, err := openLauncher(gf.ConfigPath)
			if err != nil {
				return err
			}
			defer l.Close()
			recs, err := l.Sessions(c.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range recs {
				stopped := "running"
				if r.StoppedAt.Valid {
					stopped = r.StoppedAt.Time.Format(time.RFC3339)
				}
				fmt.Printf("%4d  %s  %-13s port %-5d  %s .. %s\n",
					r.ID, r.ProjectID, r.Mode, r.Port,
					r.StartedAt.Format(time.RFC3339), stopped)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	return cmd
}
