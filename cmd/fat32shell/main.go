package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dargueta/fat32shell/engine"
	fserrors "github.com/dargueta/fat32shell/errors"
	"github.com/dargueta/fat32shell/geometry"
	"github.com/dargueta/fat32shell/image"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:      "fat32shell",
		Usage:     "interactively drive a FAT32 volume stored as a single image file",
		ArgsUsage: "IMAGE_FILE",
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func run(context *cli.Context) error {
	if context.NArg() != 1 {
		cli.ShowAppHelp(context)
		os.Exit(1)
	}

	imagePath := context.Args().Get(0)

	f, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open image %q: %s\n", imagePath, err)
		os.Exit(1)
	}
	defer f.Close()

	dev, err := image.NewFileDevice(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open image %q: %s\n", imagePath, err)
		os.Exit(1)
	}

	rawBootSector, err := dev.ReadAt(0, geometry.BootSectorSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read boot sector of %q: %s\n", imagePath, err)
		os.Exit(1)
	}
	bs, err := geometry.Parse(rawBootSector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to mount %q: %s\n", imagePath, err)
		os.Exit(1)
	}

	cached := image.NewCachedDevice(dev, int(bs.BytesPerSector))

	eng, err := engine.Mount(cached)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to mount %q: %s\n", imagePath, err)
		os.Exit(1)
	}

	repl(eng, os.Stdin, os.Stdout)
	return nil
}

func repl(eng *engine.Engine, in *os.File, out *os.File) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		cmd := fields[0]
		args := fields[1:]

		if cmd == "exit" {
			return
		}

		if err := dispatch(eng, out, cmd, args); err != nil {
			fmt.Fprintf(out, "error: %s\n", err)
		}
	}
}

func dispatch(eng *engine.Engine, out *os.File, cmd string, args []string) error {
	switch cmd {
	case "info":
		info := eng.Info()
		fmt.Fprintf(out, "Bytes Per Sector: %d\n", info.BytesPerSector)
		fmt.Fprintf(out, "Sectors Per Cluster: %d\n", info.SectorsPerCluster)
		fmt.Fprintf(out, "Reserved Sectors: %d\n", info.ReservedSectors)
		fmt.Fprintf(out, "Number of FATs: %d\n", info.NumFATs)
		fmt.Fprintf(out, "FAT Size Sectors: %d\n", info.FATSizeSectors)
		fmt.Fprintf(out, "Root Cluster: %d\n", info.RootCluster)
		return nil

	case "ls":
		names, err := eng.Ls()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(out, name)
		}
		return nil

	case "cd":
		return requireArgs(args, 1, func() error { return eng.Cd(args[0]) })

	case "mkdir":
		return requireArgs(args, 1, func() error { return eng.Mkdir(args[0]) })

	case "creat":
		return requireArgs(args, 1, func() error { return eng.Creat(args[0]) })

	case "open":
		return requireArgs(args, 2, func() error { return eng.Open(args[0], args[1]) })

	case "close":
		return requireArgs(args, 1, func() error { return eng.Close(args[0]) })

	case "lsof":
		for _, rec := range eng.Lsof() {
			fmt.Fprintf(out, "%s mode=%s offset=%d path=%s\n", rec.Path, rec.Mode, rec.Offset, rec.Path)
		}
		return nil

	case "lseek":
		return requireArgs(args, 2, func() error {
			n, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fserrors.Newf(fserrors.IOError, "invalid offset %q", args[1])
			}
			return eng.Lseek(args[0], uint32(n))
		})

	case "read":
		return requireArgs(args, 2, func() error {
			n, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fserrors.Newf(fserrors.IOError, "invalid byte count %q", args[1])
			}
			data, err := eng.Read(args[0], uint32(n))
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		})

	case "write":
		return requireArgs(args, 2, func() error {
			payload := strings.Join(args[1:], " ")
			return eng.Write(args[0], []byte(payload))
		})

	case "rm":
		if len(args) == 2 && args[0] == "-r" {
			return eng.RmR(args[1])
		}
		return requireArgs(args, 1, func() error { return eng.Rm(args[0]) })

	case "rmdir":
		return requireArgs(args, 1, func() error { return eng.Rmdir(args[0]) })

	case "fsck":
		if err := eng.CheckInvariants(); err != nil {
			fmt.Fprintln(out, err)
			return nil
		}
		fmt.Fprintln(out, "no violations found")
		return nil

	default:
		return fserrors.Newf(fserrors.IOError, "unknown command %q", cmd)
	}
}

func requireArgs(args []string, n int, f func() error) error {
	if len(args) < n {
		return fserrors.Newf(fserrors.IOError, "expected %d argument(s), got %d", n, len(args))
	}
	return f()
}
