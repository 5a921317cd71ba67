package geometry

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
)

// Preset is a named, predefined FAT32 geometry usable to format a new image.
type Preset struct {
	Slug              string `csv:"slug"`
	Label             string `csv:"label"`
	TotalSectors      uint   `csv:"total_sectors"`
	BytesPerSector    uint   `csv:"bytes_per_sector"`
	SectorsPerCluster uint   `csv:"sectors_per_cluster"`
	NumFATs           uint   `csv:"num_fats"`
	ReservedSectors   uint   `csv:"reserved_sectors"`
}

// TotalSizeBytes is the minimum size, in bytes, of an image file formatted
// with this preset.
func (p *Preset) TotalSizeBytes() int64 {
	return int64(p.TotalSectors) * int64(p.BytesPerSector)
}

//go:embed presets.csv
var rawPresetsCSV string

var presets map[string]Preset

func init() {
	presets = make(map[string]Preset)

	err := gocsv.UnmarshalToCallback(
		strings.NewReader(rawPresetsCSV),
		func(row Preset) error {
			if _, exists := presets[row.Slug]; exists {
				return fmt.Errorf("duplicate geometry preset slug %q", row.Slug)
			}
			presets[row.Slug] = row
			return nil
		},
	)
	if err != nil {
		panic(fmt.Sprintf("malformed embedded geometry presets: %s", err))
	}
}

// GetPreset looks up a named geometry preset.
func GetPreset(slug string) (Preset, error) {
	preset, ok := presets[slug]
	if !ok {
		return Preset{}, fmt.Errorf("no predefined FAT32 geometry exists with slug %q", slug)
	}
	return preset, nil
}

// PresetSlugs returns every known preset slug, for --help text.
func PresetSlugs() []string {
	slugs := make([]string, 0, len(presets))
	for slug := range presets {
		slugs = append(slugs, slug)
	}
	return slugs
}
