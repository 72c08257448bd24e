// Package product implements the product model (spec §4.J): scanning a
// NISAR GCOV file's group layout to discover its frequency/polarization
// grids and their projected coordinate systems.
package product

import (
	"context"
	"strings"

	"github.com/sarstream/sarstream/internal/hdf5"
	"github.com/sarstream/sarstream/internal/sarerr"
)

// Channel is one polarization grid within a frequency group, e.g. HH, HV,
// VV, VH.
type Channel struct {
	Name         string
	DatasetPath  string
}

// Grid is one frequency's set of co-registered polarization channels
// sharing an x/y coordinate grid.
type Grid struct {
	Frequency  string
	Channels   map[string]Channel
	XCoordPath string
	YCoordPath string
}

// Product is the top-level handle spec §4.J exposes to callers: a resolved
// set of grids plus the identification block's scene metadata.
type Product struct {
	Path           string
	Identification Identification
	Grids          map[string]Grid
}

// gcovGroupPrefixes lists the group path prefixes NISAR GCOV products nest
// their frequency grids under; real products carry both LSAR and SSAR but a
// test fixture may carry only one.
var gcovGroupPrefixes = []string{
	"/science/LSAR/GCOV/grids",
	"/science/SSAR/GCOV/grids",
}

// polarizationNames lists the dataset names a GCOV frequency group may hold;
// covariance terms (HHHH, HVHV, ...) reduce to their diagonal polarization.
var polarizationNames = []string{"HHHH", "HVHV", "VHVH", "VVVV", "HH", "HV", "VH", "VV"}

// Scan walks the HDF5 object tree at src/sb, resolving the GCOV grid layout
// into a Product.
func Scan(ctx context.Context, src hdf5.Source, sb *hdf5.Superblock) (*Product, error) {
	p := &Product{Grids: make(map[string]Grid)}

	ident, err := scanIdentification(ctx, src, sb)
	if err == nil {
		p.Identification = ident
	} else if !sarerr.Is(err, sarerr.NotFound) {
		return nil, err
	}

	foundAny := false
	for _, prefix := range gcovGroupPrefixes {
		grids, err := scanGrids(ctx, src, sb, prefix)
		if err != nil {
			if sarerr.Is(err, sarerr.NotFound) {
				continue
			}
			return nil, err
		}
		foundAny = true
		for freq, g := range grids {
			p.Grids[freq] = g
		}
	}
	if !foundAny {
		return nil, sarerr.New(sarerr.UnsupportedFormat, "no GCOV frequency grids found")
	}
	return p, nil
}

func scanGrids(ctx context.Context, src hdf5.Source, sb *hdf5.Superblock, gridsGroupPath string) (map[string]Grid, error) {
	gridsAddr, err := hdf5.ResolvePath(ctx, src, sb, gridsGroupPath)
	if err != nil {
		return nil, err
	}
	gridsOH, err := hdf5.ReadObjectHeader(ctx, src, sb, gridsAddr)
	if err != nil {
		return nil, err
	}
	freqLinks, err := hdf5.ChildrenOf(ctx, src, sb, gridsOH)
	if err != nil {
		return nil, err
	}

	grids := make(map[string]Grid)
	for _, fl := range freqLinks {
		if !strings.HasPrefix(fl.Name, "frequency") {
			continue
		}
		freqOH, err := hdf5.ReadObjectHeader(ctx, src, sb, fl.ObjectAddress)
		if err != nil {
			return nil, err
		}
		children, err := hdf5.ChildrenOf(ctx, src, sb, freqOH)
		if err != nil {
			return nil, err
		}

		grid := Grid{Frequency: fl.Name, Channels: make(map[string]Channel)}
		basePath := gridsGroupPath + "/" + fl.Name
		for _, c := range children {
			switch c.Name {
			case "xCoordinates":
				grid.XCoordPath = basePath + "/" + c.Name
			case "yCoordinates":
				grid.YCoordPath = basePath + "/" + c.Name
			default:
				if isPolarizationDataset(c.Name) {
					pol := polarizationFromName(c.Name)
					grid.Channels[pol] = Channel{Name: pol, DatasetPath: basePath + "/" + c.Name}
				}
			}
		}
		if len(grid.Channels) > 0 {
			grids[fl.Name] = grid
		}
	}
	if len(grids) == 0 {
		return nil, sarerr.New(sarerr.NotFound, "no frequency groups under "+gridsGroupPath)
	}
	return grids, nil
}

func isPolarizationDataset(name string) bool {
	for _, p := range polarizationNames {
		if strings.EqualFold(name, p) {
			return true
		}
	}
	return false
}

// polarizationFromName extracts a channel's polarization code from its
// dataset name, e.g. "HHHH" (covariance diagonal) -> "HH".
func polarizationFromName(name string) string {
	upper := strings.ToUpper(name)
	for _, pol := range []string{"HH", "HV", "VH", "VV"} {
		if strings.HasPrefix(upper, pol) {
			return pol
		}
	}
	return upper
}
