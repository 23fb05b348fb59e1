//go:build linux

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mit-pdos/naivefs/buf"
	"github.com/mit-pdos/naivefs/common"
	"github.com/mit-pdos/naivefs/disk"
	"github.com/mit-pdos/naivefs/fusefs"
	"github.com/mit-pdos/naivefs/naivefs"
	"github.com/mit-pdos/naivefs/super"
	"github.com/mit-pdos/naivefs/util"
)

var deviceFlag = cli.StringFlag{
	Name:     "device",
	Aliases:  []string{"d"},
	Usage:    "block device or image file holding the file system",
	EnvVars:  []string{"NAIVEFS_DEVICE"},
	Required: true,
}

var ioSizeFlag = cli.Uint64Flag{
	Name:    "io-size",
	Usage:   "I/O unit of an image file in bytes; block devices report their own",
	EnvVars: []string{"NAIVEFS_IO_SIZE"},
	Value:   disk.DefaultUnitSize,
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "naivefs",
		Usage: "a minimal block file system served over FUSE",
		Commands: []*cli.Command{{
			Name:  "mount",
			Usage: "mount the file system on a device at a directory",
			Flags: []cli.Flag{
				&deviceFlag,
				&ioSizeFlag,
				&cli.StringFlag{
					Name:     "mountpoint",
					Aliases:  []string{"m"},
					Usage:    "directory to mount on",
					EnvVars:  []string{"NAIVEFS_MOUNTPOINT"},
					Required: true,
				},
				&cli.Uint64Flag{
					Name:    "debug",
					Usage:   "debug print level; 0 disables",
					EnvVars: []string{"NAIVEFS_DEBUG"},
				},
				&cli.Uint64Flag{
					Name:    "image-size",
					Usage:   "size in bytes an empty image file is grown to",
					EnvVars: []string{"NAIVEFS_IMAGE_SIZE"},
					Value:   disk.DefaultOptions().ImageSize,
				},
				&cli.BoolFlag{
					Name:    "allow-other",
					Usage:   "let other users access the mount",
					EnvVars: []string{"NAIVEFS_ALLOW_OTHER"},
				},
			},
			Action: withDisk(mount),
		}, {
			Name:   "info",
			Usage:  "print the superblock recorded on a device",
			Flags:  []cli.Flag{&deviceFlag, &ioSizeFlag},
			Action: withDisk(info),
		}},
	}
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if err := newApp().Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func withDisk(f func(d disk.Disk, ctx *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		util.Debug = ctx.Uint64("debug")
		if util.Debug > 0 {
			logrus.SetLevel(logrus.DebugLevel)
		}
		opts := disk.DefaultOptions()
		opts.UnitSize = ctx.Uint64(ioSizeFlag.Name)
		if ctx.IsSet("image-size") {
			opts.ImageSize = ctx.Uint64("image-size")
		}
		d, err := disk.NewFileDisk(ctx.String(deviceFlag.Name), opts)
		if err != nil {
			return err
		}
		return f(d, ctx)
	}
}

func mount(d disk.Disk, ctx *cli.Context) error {
	nfs, err := naivefs.Mount(d)
	if err != nil {
		d.Close()
		return err
	}
	device := ctx.String(deviceFlag.Name)
	mnt := ctx.String("mountpoint")
	server, err := fusefs.Mount(mnt, nfs, fusefs.MountOptions{
		FsName:     device,
		AllowOther: ctx.Bool("allow-other"),
		Debug:      util.Debug >= 10,
	})
	if err != nil {
		nfs.Unmount()
		return err
	}
	log := logrus.WithFields(logrus.Fields{"device": device, "mountpoint": mnt})
	log.Info("serving")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.WithField("signal", sig).Info("unmounting")
		if err := server.Unmount(); err != nil {
			log.WithError(err).Error("unmount failed")
		}
	}()

	server.Wait()
	if err := nfs.Unmount(); err != nil {
		return fmt.Errorf("write back %s: %w", device, err)
	}
	log.Info("unmounted")
	return nil
}

func info(d disk.Disk, ctx *cli.Context) error {
	defer d.Close()
	b, err := buf.Read(d, common.SUPEROFF, super.SUPERSZ)
	if err != nil {
		return err
	}
	sb := super.Decode(b)
	if !sb.Initialized() {
		return fmt.Errorf("%s: no naivefs superblock", ctx.String(deviceFlag.Name))
	}
	enc := yaml.NewEncoder(ctx.App.Writer)
	defer enc.Close()
	return enc.Encode(sb)
}
