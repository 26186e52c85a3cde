// Command wlfs mounts the synthetic filesystem engine at a given mount
// point and serves kernel-bridge callbacks until it is unmounted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/moby/sys/mountinfo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cloudxtreme/wlfs/internal/engine"
	"github.com/cloudxtreme/wlfs/internal/tcpfs"
)

type mountFlags struct {
	debug         bool
	allowOther    bool
	intr          bool
	nonempty      bool
	directIO      bool
	tcp           bool
	tcpNamed      bool
	fsName        string
}

func main() {
	flags := &mountFlags{}
	log := logrus.New()

	root := &cobra.Command{
		Use:   "wlfs MOUNTPOINT",
		Short: "mount the pluggable synthetic filesystem engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], flags, log)
		},
	}

	root.Flags().BoolVar(&flags.debug, "debug", false, "log kernel-bridge callback traffic")
	root.Flags().BoolVar(&flags.allowOther, "allow-other", false, "allow access by users other than the one who mounted it")
	root.Flags().BoolVar(&flags.intr, "intr", true, "allow interrupting filesystem calls")
	root.Flags().BoolVar(&flags.nonempty, "nonempty", false, "allow mounting over a non-empty directory")
	root.Flags().BoolVar(&flags.directIO, "direct-io", true, "bypass the kernel page cache (required for dynamic provider content)")
	root.Flags().BoolVar(&flags.tcp, "tcp", true, "install the /tcp example provider suite")
	root.Flags().BoolVar(&flags.tcpNamed, "tcp-named-sessions", false, "use short uuid names for /tcp session directories instead of a decimal counter")
	root.Flags().StringVar(&flags.fsName, "fs-name", "wlfs", "filesystem name reported to the kernel")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(mountpoint string, flags *mountFlags, log *logrus.Logger) error {
	if flags.debug {
		log.SetLevel(logrus.DebugLevel)
	}

	if already, err := mountinfo.Mounted(mountpoint); err != nil {
		return fmt.Errorf("checking mount state of %s: %w", mountpoint, err)
	} else if already {
		return fmt.Errorf("%s is already a mount point", mountpoint)
	}

	e := engine.New(log.WithField("component", "engine"))
	if flags.tcp {
		e.RegisterOps(50, tcpfs.New(flags.tcpNamed))
		if _, err := e.Mkdir(e.Root(), "tcp", 0o755); err != nil {
			return fmt.Errorf("creating /tcp: %w", err)
		}
	}

	var mountOpts []string
	if flags.intr {
		mountOpts = append(mountOpts, "intr")
	}
	if flags.nonempty {
		mountOpts = append(mountOpts, "nonempty")
	}
	if flags.directIO {
		mountOpts = append(mountOpts, "direct_io")
	}

	server, err := fuse.NewServer(e.RawFS(), mountpoint, &fuse.MountOptions{
		AllowOther: flags.allowOther,
		Debug:      flags.debug,
		FsName:     flags.fsName,
		Name:       flags.fsName,
		Options:    mountOpts,
	})
	if err != nil {
		return fmt.Errorf("mounting at %s: %w", mountpoint, err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("received shutdown signal, unmounting")
		server.Unmount()
	}()

	log.WithField("mountpoint", mountpoint).Info("mounted")
	go server.Serve()
	server.WaitMount()
	server.Wait()

	e.Destroy()
	return nil
}
