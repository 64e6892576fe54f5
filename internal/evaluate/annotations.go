package evaluate

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mseitzer/pattern-spotting/internal/localization"
)

// Annotation is one labeled crop. Crops with the same label show the same
// motif; label 0 means unlabeled.
type Annotation struct {
	// Name is the crop's file name, "<prefix>_<corpus image file name>".
	Name  string
	Box   localization.Box
	Label int
}

// SourceImage is the file name of the corpus image the crop was cut from.
func (a Annotation) SourceImage() string {
	if _, after, ok := strings.Cut(a.Name, "_"); ok {
		return after
	}
	return a.Name
}

// ParseAnnotations reads lines of the form
//
//	name;left upper right lower;label
//
// Blank lines are skipped.
func ParseAnnotations(r io.Reader) ([]Annotation, error) {
	var out []Annotation
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		parts := strings.Split(text, ";")
		if len(parts) != 3 {
			return nil, fmt.Errorf("line %d: want 3 fields separated by ';', got %d", line, len(parts))
		}

		coords := strings.Fields(parts[1])
		if len(coords) != 4 {
			return nil, fmt.Errorf("line %d: want 4 box coordinates, got %d", line, len(coords))
		}
		var c [4]int
		for i, s := range coords {
			v, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("line %d: box: %w", line, err)
			}
			c[i] = v
		}
		label, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("line %d: label: %w", line, err)
		}

		out = append(out, Annotation{
			Name:  parts[0],
			Box:   localization.Box{Left: c[0], Upper: c[1], Right: c[2], Lower: c[3]},
			Label: label,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteAnnotations writes annotations in the format read by
// ParseAnnotations.
func WriteAnnotations(w io.Writer, annotations []Annotation) error {
	bw := bufio.NewWriter(w)
	for _, a := range annotations {
		_, err := fmt.Fprintf(bw, "%s;%d %d %d %d;%d\n",
			a.Name, a.Box.Left, a.Box.Upper, a.Box.Right, a.Box.Lower, a.Label)
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}
