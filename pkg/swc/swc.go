// Package swc reads and writes the SWC neuron-morphology interchange
// format: one text record per skeleton node carrying id, type tag,
// physical position, radius and parent id. Files begin with a comment
// block; a file holding only a comment line is a valid "no skeleton"
// result.
package swc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TypeDendrite is the node type tag written for every skeleton point.
// Soma and dendrite voxels are not distinguished in skeleton output.
const TypeDendrite = 3

// Header is the comment placed at the top of generated skeleton files.
const Header = "Generated by arbortrace skeletonize"

// Record is one SWC node line. Ids are 1-based and contiguous in file
// order; Parent is -1 for the root, otherwise the id of a record that
// appeared earlier in the file.
type Record struct {
	// ID is the 1-based sequential node id.
	ID int

	// Type is the SWC structure tag; TypeDendrite for generated files.
	Type int

	// X, Y, Z are the node position in physical units.
	X, Y, Z float64

	// Radius is the node radius in physical units. Generated files
	// write a placeholder of 1.0 since the thinned skeleton carries no
	// thickness information.
	Radius float64

	// Parent is the id of the parent node, or -1 for the root.
	Parent int
}

// Write emits the header comment followed by one line per record.
// Positions and radius are written with 3-decimal precision.
func Write(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "# %s\n", Header); err != nil {
		return err
	}
	for _, r := range records {
		_, err := fmt.Fprintf(bw, "%d %d %.3f %.3f %.3f %.3f %d\n",
			r.ID, r.Type, r.X, r.Y, r.Z, r.Radius, r.Parent)
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes records to path atomically: the text goes to a
// temporary file in the destination directory which is renamed over
// path only after a successful write, so a failed run never leaves a
// partial file behind.
func WriteFile(path string, records []Record) error {
	return writeAtomic(path, func(w io.Writer) error {
		return Write(w, records)
	})
}

// WritePlaceholderFile writes a valid zero-record SWC file containing
// only the given comment. Used when there is nothing to skeletonize.
func WritePlaceholderFile(path, comment string) error {
	return writeAtomic(path, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "# %s\n", comment)
		return err
	})
}

func writeAtomic(path string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %v", err)
	}
	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %v", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to finalize %s: %v", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move %s into place: %v", path, err)
	}
	return nil
}

// Parse reads SWC text, skipping comment lines (leading '#') and blank
// lines. Each remaining line must hold exactly 7 whitespace-separated
// fields.
func Parse(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 7 {
			return nil, fmt.Errorf("line %d: expected 7 fields, got %d", lineNo, len(fields))
		}

		var (
			rec  Record
			errs [7]error
		)
		rec.ID, errs[0] = strconv.Atoi(fields[0])
		rec.Type, errs[1] = strconv.Atoi(fields[1])
		rec.X, errs[2] = strconv.ParseFloat(fields[2], 64)
		rec.Y, errs[3] = strconv.ParseFloat(fields[3], 64)
		rec.Z, errs[4] = strconv.ParseFloat(fields[4], 64)
		rec.Radius, errs[5] = strconv.ParseFloat(fields[5], 64)
		rec.Parent, errs[6] = strconv.Atoi(fields[6])
		for _, err := range errs {
			if err != nil {
				return nil, fmt.Errorf("line %d: %v", lineNo, err)
			}
		}

		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// ParseFile reads and parses the SWC file at path.
func ParseFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}
	defer f.Close()
	records, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %v", path, err)
	}
	return records, nil
}

// Validate checks the structural invariants of a generated record
// sequence: ids are 1-based and sequential in file order, and every
// parent is either -1 or the id of a record that appeared earlier.
// Together these guarantee a rooted forest with no forward references
// and no cycles.
func Validate(records []Record) error {
	for i, r := range records {
		if r.ID != i+1 {
			return fmt.Errorf("record %d: id %d is not sequential", i, r.ID)
		}
		if r.Parent == -1 {
			continue
		}
		if r.Parent < 1 || r.Parent > i {
			return fmt.Errorf("record %d: parent %d does not reference an earlier record", i, r.Parent)
		}
	}
	return nil
}
