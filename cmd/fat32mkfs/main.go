package main

import (
	"fmt"
	"os"

	"github.com/dargueta/fat32shell/format"
	"github.com/dargueta/fat32shell/geometry"
	"github.com/dargueta/fat32shell/image"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(
			os.Stderr,
			"Format a blank FAT32 image from a named geometry preset.\nUsage: %s preset-slug output-file\nKnown presets: %s\n",
			os.Args[0], geometry.PresetSlugs())
		os.Exit(1)
	}

	slug := os.Args[1]
	outputPath := os.Args[2]

	preset, err := geometry.GetPreset(slug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create %q: %s\n", outputPath, err)
		os.Exit(1)
	}
	defer f.Close()

	if err := f.Truncate(preset.TotalSizeBytes()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to size %q: %s\n", outputPath, err)
		os.Exit(1)
	}

	dev, err := image.NewFileDevice(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %q: %s\n", outputPath, err)
		os.Exit(1)
	}

	if err := format.FormatImage(dev, preset); err != nil {
		fmt.Fprintf(os.Stderr, "failed to format %q: %s\n", outputPath, err)
		os.Exit(1)
	}

	fmt.Printf("formatted %q with preset %q (%d bytes)\n", outputPath, slug, preset.TotalSizeBytes())
}
