package fieldio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/DataDog/zstd"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/picsim/mesh"
)

// ErrCorrupt is returned when a raw dump does not match its header.
var ErrCorrupt = errors.New("corrupt raw field")

// compressionLevel trades ratio for speed; field dumps happen every
// diagnostic step.
const compressionLevel = 3

// RawPatch describes one patch of a raw dump.
type RawPatch struct {
	Lo   mesh.IntVect `yaml:"lo"`
	Hi   mesh.IntVect `yaml:"hi"`
	File string       `yaml:"file"`
}

// RawHeader is the YAML side-car of a raw field dump.
type RawHeader struct {
	Field     string         `yaml:"field"`
	IndexType mesh.IndexType `yaml:"index_type"`
	NComp     int            `yaml:"ncomp"`
	NGrow     mesh.IntVect   `yaml:"ngrow"`
	Guards    bool           `yaml:"guards"`
	Patches   []RawPatch     `yaml:"patches"`
}

// RawField is a raw dump read back from disk: one fab per patch over the
// region that was written.
type RawField struct {
	Header RawHeader
	Fabs   []*mesh.Fab
}

func headerPath(dir, prefix, field string) string {
	return filepath.Join(dir, prefix, field+".yaml")
}

// WriteRawField dumps every patch of mf, with its ghosts when plotGuards is
// set, to <dir>/<prefix>/<field>_<patch>.zst and describes the dump in
// <dir>/<prefix>/<field>.yaml.
func WriteRawField(dir, prefix, field string, mf *mesh.MultiFab, plotGuards bool) error {
	regions := make([]mesh.Box, mf.NumPatches())
	for p := range regions {
		regions[p] = mf.ValidBox(p)
		if plotGuards {
			regions[p] = mf.FabBox(p)
		}
	}
	return writeRaw(dir, prefix, field, mf, regions, plotGuards, func(p int) *mesh.Fab { return mf.Fab(p) })
}

// WriteZeroRawField writes a dump with the layout of mf grown by ng ghosts
// and every value zero. It stands in for fields a level does not carry.
func WriteZeroRawField(dir, prefix, field string, mf *mesh.MultiFab, ng mesh.IntVect) error {
	regions := make([]mesh.Box, mf.NumPatches())
	for p := range regions {
		regions[p] = mf.ValidBox(p).Grow(ng)
	}
	return writeRaw(dir, prefix, field, mf, regions, ng != mesh.IntVect{}, func(p int) *mesh.Fab {
		return mesh.NewFab(regions[p], mf.NComp())
	})
}

// WriteCoarseScalar interpolates component icomp of the coarse-patch field
// cp onto the layout of the fine-patch field fp and dumps it. Without a
// coarse patch, as on the base level, a zero field is written instead.
func WriteCoarseScalar(dir, prefix, field string, cp, fp *mesh.MultiFab, ratio int, plotGuards bool, icomp int) error {
	var ng mesh.IntVect
	if plotGuards {
		ng = fp.NGrow()
	}
	if cp == nil {
		return WriteZeroRawField(dir, prefix, field, fp, ng)
	}
	interp := InterpolatedScalar(component(cp, icomp), fp, ratio, ng)
	return WriteRawField(dir, prefix, field, interp, plotGuards)
}

// WriteCoarseVector writes the three components of a coarse-patch vector
// field as <field>x, <field>y and <field>z.
func WriteCoarseVector(dir, prefix, field string, cp, fp [3]*mesh.MultiFab, ratio int, plotGuards bool) error {
	for d, suffix := range []string{"x", "y", "z"} {
		if err := WriteCoarseScalar(dir, prefix, field+suffix, cp[d], fp[d], ratio, plotGuards, 0); err != nil {
			return err
		}
	}
	return nil
}

// component returns a single-component view of component c of mf.
func component(mf *mesh.MultiFab, c int) *mesh.MultiFab {
	if mf.NComp() == 1 && c == 0 {
		return mf
	}
	out := mesh.NewMultiFab(mf.BoxArray(), mf.DistributionMap(), 1, mf.NGrow(), mf.IndexType())
	for p := 0; p < mf.NumPatches(); p++ {
		out.Fab(p).Copy(mf.Fab(p), out.FabBox(p), c, 0, 1)
	}
	return out
}

func writeRaw(dir, prefix, field string, mf *mesh.MultiFab, regions []mesh.Box, guards bool, fab func(p int) *mesh.Fab) error {
	outDir := filepath.Join(dir, prefix)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", outDir, err)
	}

	h := RawHeader{
		Field:     field,
		IndexType: mf.IndexType(),
		NComp:     mf.NComp(),
		NGrow:     mf.NGrow(),
		Guards:    guards,
		Patches:   make([]RawPatch, len(regions)),
	}

	var raw bytes.Buffer
	var compressed []byte
	for p, b := range regions {
		name := fmt.Sprintf("%s_%05d.zst", field, p)
		h.Patches[p] = RawPatch{Lo: b.Lo, Hi: b.Hi, File: name}

		src := fab(p)
		raw.Reset()
		for c := 0; c < mf.NComp(); c++ {
			var werr error
			src.ForEachRow(b, c, func(_, _ int, row []float64) {
				if werr == nil {
					werr = binary.Write(&raw, binary.LittleEndian, row)
				}
			})
			if werr != nil {
				return fmt.Errorf("encoding %s patch %d: %w", field, p, werr)
			}
		}
		var err error
		compressed, err = zstd.CompressLevel(compressed[:0], raw.Bytes(), compressionLevel)
		if err != nil {
			return fmt.Errorf("compressing %s patch %d: %w", field, p, err)
		}
		if err := os.WriteFile(filepath.Join(outDir, name), compressed, 0o644); err != nil {
			return fmt.Errorf("writing %s patch %d: %w", field, p, err)
		}
	}

	data, err := yaml.Marshal(&h)
	if err != nil {
		return fmt.Errorf("marshaling %s header: %w", field, err)
	}
	if err := os.WriteFile(headerPath(dir, prefix, field), data, 0o644); err != nil {
		return fmt.Errorf("writing %s header: %w", field, err)
	}
	return nil
}

// ReadRawField loads a dump written by WriteRawField and friends.
func ReadRawField(dir, prefix, field string) (*RawField, error) {
	data, err := os.ReadFile(headerPath(dir, prefix, field))
	if err != nil {
		return nil, fmt.Errorf("reading %s header: %w", field, err)
	}
	rf := &RawField{}
	if err := yaml.Unmarshal(data, &rf.Header); err != nil {
		return nil, fmt.Errorf("parsing %s header: %w", field, err)
	}
	if rf.Header.NComp < 1 {
		return nil, fmt.Errorf("%s header has %d components: %w", field, rf.Header.NComp, ErrCorrupt)
	}

	var raw []byte
	for p, rp := range rf.Header.Patches {
		b := mesh.NewBox(rp.Lo, rp.Hi)
		if !b.Ok() {
			return nil, fmt.Errorf("%s patch %d has box %v: %w", field, p, b, ErrCorrupt)
		}
		compressed, err := os.ReadFile(filepath.Join(dir, prefix, rp.File))
		if err != nil {
			return nil, fmt.Errorf("reading %s patch %d: %w", field, p, err)
		}
		raw, err = zstd.Decompress(raw[:0], compressed)
		if err != nil {
			return nil, fmt.Errorf("decompressing %s patch %d: %w", field, p, err)
		}
		if len(raw) != 8*b.NumPts()*rf.Header.NComp {
			return nil, fmt.Errorf("%s patch %d holds %d bytes for %d points: %w",
				field, p, len(raw), b.NumPts()*rf.Header.NComp, ErrCorrupt)
		}

		f := mesh.NewFab(b, rf.Header.NComp)
		rd := bytes.NewReader(raw)
		for c := 0; c < rf.Header.NComp; c++ {
			if err := binary.Read(rd, binary.LittleEndian, f.Comp(c)); err != nil {
				return nil, fmt.Errorf("decoding %s patch %d: %w", field, p, err)
			}
		}
		rf.Fabs = append(rf.Fabs, f)
	}
	return rf, nil
}
