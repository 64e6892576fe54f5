package store

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unsafe"

	"github.com/edsrzf/mmap-go"

	"github.com/mseitzer/pattern-spotting/internal/descriptor"
	"github.com/mseitzer/pattern-spotting/internal/search"
	"github.com/mseitzer/pattern-spotting/internal/similarity"
)

// Meta is the content of the .meta file.
//
// Dim and Images record the extracted corpus: the extractor's channel count
// and every image with a feature blob. Only Extract writes them. Index
// records the last Build and is replaced by every rebuild.
type Meta struct {
	Name      string            `json:"name"`
	Extractor string            `json:"extractor,omitempty"`
	Dim       int               `json:"dim"`
	Images    []search.Metadata `json:"images"`
	Index     *Index            `json:"index,omitempty"`
}

// Index describes the descriptor matrix: its dimension and the image of
// every row.
type Index struct {
	Dim      int               `json:"dim"`
	Whitened bool              `json:"whitened"`
	Images   []search.Metadata `json:"images"`
}

// MetaPath, ReprPath and PCAPath name the files of a store.
func MetaPath(dir, name string) string { return filepath.Join(dir, name+".meta") }

func ReprPath(dir, name string) string { return filepath.Join(dir, name+".repr") }

func PCAPath(dir, name string) string { return filepath.Join(dir, name+".pca") }

// FeatureBlobName is the blob name of an image's feature map. image is the
// slash-separated path relative to the image root.
func FeatureBlobName(image string) string {
	image = filepath.ToSlash(image)
	return "features/" + strings.TrimSuffix(image, path.Ext(image)) + ".fmap"
}

// ReadMeta loads a .meta file.
func ReadMeta(dir, name string) (*Meta, error) {
	data, err := os.ReadFile(MetaPath(dir, name))
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", MetaPath(dir, name), err)
	}
	return &m, nil
}

// WriteMeta stores m atomically.
func WriteMeta(dir string, m *Meta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(MetaPath(dir, m.Name), func(w *bufio.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// LoadWhitening loads the store's PCA file. A store without one returns
// nil and no error.
func LoadWhitening(dir, name string) (*descriptor.PCA, error) {
	p, err := descriptor.LoadPCA(PCAPath(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return p, err
}

// Matrix file layout:
//
//	[0:4]   magic "PSRP"
//	[4:8]   rows
//	[8:12]  dim
//	[12:16] reserved
//	[16:]   rows*dim float32, little endian
const reprHeaderSize = 16

var reprMagic = [4]byte{'P', 'S', 'R', 'P'}

// WriteMatrix stores a descriptor matrix.
func WriteMatrix(p string, m *similarity.Matrix) error {
	if len(m.Data) != m.Rows*m.Dim {
		return fmt.Errorf("matrix %dx%d has %d values", m.Rows, m.Dim, len(m.Data))
	}
	return writeFileAtomic(p, func(w *bufio.Writer) error {
		var hdr [reprHeaderSize]byte
		copy(hdr[:4], reprMagic[:])
		binary.LittleEndian.PutUint32(hdr[4:], uint32(m.Rows))
		binary.LittleEndian.PutUint32(hdr[8:], uint32(m.Dim))
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		var buf [4]byte
		for _, v := range m.Data {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			if _, err := w.Write(buf[:]); err != nil {
				return err
			}
		}
		return nil
	})
}

// mappedMatrix is a descriptor matrix backed by an mmapped .repr file.
// Data aliases the mapping and is valid until Close.
type mappedMatrix struct {
	f    *os.File
	data mmap.MMap
	m    *similarity.Matrix
}

func openMatrix(p string) (*mappedMatrix, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	out := &mappedMatrix{f: f, data: mm}

	if len(mm) < reprHeaderSize || [4]byte(mm[:4]) != reprMagic {
		out.Close()
		return nil, fmt.Errorf("%s: not a descriptor matrix", p)
	}
	rows := int(binary.LittleEndian.Uint32(mm[4:]))
	dim := int(binary.LittleEndian.Uint32(mm[8:]))
	if want := reprHeaderSize + 4*rows*dim; len(mm) != want {
		out.Close()
		return nil, fmt.Errorf("%s: %d bytes, want %d for %dx%d", p, len(mm), want, rows, dim)
	}

	out.m = &similarity.Matrix{Rows: rows, Dim: dim}
	if rows*dim > 0 {
		// The file is little endian, as are all supported hosts.
		ptr := unsafe.Pointer(&mm[reprHeaderSize])
		out.m.Data = unsafe.Slice((*float32)(ptr), rows*dim)
	}
	return out, nil
}

func (mm *mappedMatrix) Close() error {
	if mm.data != nil {
		if err := mm.data.Unmap(); err != nil {
			return err
		}
		mm.data = nil
	}
	if mm.f != nil {
		err := mm.f.Close()
		mm.f = nil
		return err
	}
	return nil
}

func writeFileAtomic(p string, write func(*bufio.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)
	err = write(w)
	if err == nil {
		err = w.Flush()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}
