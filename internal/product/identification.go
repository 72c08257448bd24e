package product

import (
	"context"
	"strings"

	"github.com/sarstream/sarstream/internal/hdf5"
	"github.com/sarstream/sarstream/internal/sarerr"
)

// Identification carries the scene metadata NISAR GCOV products store under
// /science/<band>/identification, harvested as plain Go strings/integers
// rather than preserving HDF5 attribute typing.
type Identification struct {
	AbsoluteOrbitNumber int64
	TrackNumber         int64
	FrameNumber         int64
	ZeroDopplerStart    string
	ZeroDopplerEnd      string
	BoundingPolygon     string
}

var identificationPaths = []string{
	"/science/LSAR/identification",
	"/science/SSAR/identification",
}

func scanIdentification(ctx context.Context, src hdf5.Source, sb *hdf5.Superblock) (Identification, error) {
	var lastErr error = sarerr.New(sarerr.NotFound, "no identification group found")
	for _, path := range identificationPaths {
		addr, err := hdf5.ResolvePath(ctx, src, sb, path)
		if err != nil {
			lastErr = err
			continue
		}
		oh, err := hdf5.ReadObjectHeader(ctx, src, sb, addr)
		if err != nil {
			return Identification{}, err
		}
		children, err := hdf5.ChildrenOf(ctx, src, sb, oh)
		if err != nil {
			return Identification{}, err
		}
		ident := Identification{}
		for _, c := range children {
			val, err := hdf5.ReadScalarString(ctx, src, sb, c.ObjectAddress)
			if err != nil {
				continue
			}
			switch c.Name {
			case "zeroDopplerStartTime":
				ident.ZeroDopplerStart = val
			case "zeroDopplerEndTime":
				ident.ZeroDopplerEnd = val
			case "boundingPolygon":
				ident.BoundingPolygon = val
			case "absoluteOrbitNumber":
				ident.AbsoluteOrbitNumber = parseInt(val)
			case "trackNumber":
				ident.TrackNumber = parseInt(val)
			case "frameNumber":
				ident.FrameNumber = parseInt(val)
			}
		}
		return ident, nil
	}
	return Identification{}, lastErr
}

func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	var n int64
	neg := false
	for i, r := range s {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int64(r-'0')
	}
	if neg {
		n = -n
	}
	return n
}
