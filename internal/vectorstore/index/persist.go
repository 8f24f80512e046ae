package index

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/feichai0017/pdf-rag/internal/embedding"
	"github.com/feichai0017/pdf-rag/internal/models"
)

const (
	DocstoreFile = "docstore.json"
	VectorsFile  = "index.bin"

	// TempPrefix marks directories that are still being written.
	TempPrefix = ".tmp-"

	vectorsMagic   = "PRAGIDX1"
	vectorsVersion = uint32(1)
)

type docstore struct {
	Dimension int            `json:"dimension"`
	Chunks    []models.Chunk `json:"chunks"`
}

// Persist writes the index into dir. Files are written to a hidden sibling
// directory which is then renamed into place, so dir is either absent or
// complete. An existing dir is replaced.
func (ix *Index) Persist(dir string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	parent, base := filepath.Dir(dir), filepath.Base(dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("%w: failed to create %s: %v", models.ErrStorage, parent, err)
	}

	tmp, err := os.MkdirTemp(parent, TempPrefix+base+"-")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp dir: %v", models.ErrStorage, err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(tmp)
		}
	}()

	if err := ix.writeDocstore(filepath.Join(tmp, DocstoreFile)); err != nil {
		return err
	}
	if err := ix.writeVectors(filepath.Join(tmp, VectorsFile)); err != nil {
		return err
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: failed to replace %s: %v", models.ErrStorage, dir, err)
	}
	if err := os.Rename(tmp, dir); err != nil {
		return fmt.Errorf("%w: failed to publish %s: %v", models.ErrStorage, dir, err)
	}
	committed = true
	return nil
}

func (ix *Index) writeDocstore(path string) error {
	data, err := json.Marshal(docstore{Dimension: ix.dimension, Chunks: ix.chunks})
	if err != nil {
		return fmt.Errorf("failed to encode docstore: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write docstore: %v", models.ErrStorage, err)
	}
	return nil
}

// index.bin layout: 8-byte magic, then version, count and dimension as
// little-endian uint32, then count*dimension little-endian float32.
func (ix *Index) writeVectors(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: failed to create vectors file: %v", models.ErrStorage, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	header := []uint32{vectorsVersion, uint32(len(ix.vectors)), uint32(ix.dimension)}
	if _, err := w.WriteString(vectorsMagic); err != nil {
		return fmt.Errorf("%w: failed to write vectors: %v", models.ErrStorage, err)
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("%w: failed to write vectors: %v", models.ErrStorage, err)
	}
	buf := make([]byte, 4)
	for _, v := range ix.vectors {
		for _, x := range v {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			if _, err := w.Write(buf); err != nil {
				return fmt.Errorf("%w: failed to write vectors: %v", models.ErrStorage, err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: failed to flush vectors: %v", models.ErrStorage, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: failed to sync vectors: %v", models.ErrStorage, err)
	}
	return nil
}

// Load reads an index written by Persist. Missing, unreadable or
// inconsistent files wrap models.ErrCorruptIndex.
func Load(dir string, emb embedding.Embedder) (*Index, error) {
	data, err := os.ReadFile(filepath.Join(dir, DocstoreFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCorruptIndex, err)
	}
	var ds docstore
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("%w: docstore: %v", models.ErrCorruptIndex, err)
	}

	vectors, dim, err := readVectors(filepath.Join(dir, VectorsFile))
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(ds.Chunks) {
		return nil, fmt.Errorf("%w: %d vectors for %d chunks", models.ErrCorruptIndex, len(vectors), len(ds.Chunks))
	}
	if dim != ds.Dimension {
		return nil, fmt.Errorf("%w: dimension %d in vectors, %d in docstore", models.ErrCorruptIndex, dim, ds.Dimension)
	}

	return &Index{
		emb:       emb,
		dimension: dim,
		chunks:    ds.Chunks,
		vectors:   vectors,
	}, nil
}

func readVectors(path string) ([][]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", models.ErrCorruptIndex, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	magic := make([]byte, len(vectorsMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != vectorsMagic {
		return nil, 0, fmt.Errorf("%w: bad vectors header", models.ErrCorruptIndex)
	}
	header := make([]uint32, 3)
	if err := binary.Read(r, binary.LittleEndian, header); err != nil {
		return nil, 0, fmt.Errorf("%w: bad vectors header: %v", models.ErrCorruptIndex, err)
	}
	if header[0] != vectorsVersion {
		return nil, 0, fmt.Errorf("%w: unsupported vectors version %d", models.ErrCorruptIndex, header[0])
	}
	count, dim := int(header[1]), int(header[2])
	if count > 0 && dim == 0 {
		return nil, 0, fmt.Errorf("%w: zero dimension", models.ErrCorruptIndex)
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", models.ErrCorruptIndex, err)
	}
	if want := int64(len(vectorsMagic)) + 12 + int64(count)*int64(dim)*4; fi.Size() != want {
		return nil, 0, fmt.Errorf("%w: vectors file is %d bytes, want %d", models.ErrCorruptIndex, fi.Size(), want)
	}

	vectors := make([][]float32, count)
	buf := make([]byte, 4*dim)
	for i := range vectors {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, 0, fmt.Errorf("%w: truncated vectors: %v", models.ErrCorruptIndex, err)
		}
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:]))
		}
		vectors[i] = v
	}
	if _, err := r.ReadByte(); !errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("%w: trailing data in vectors file", models.ErrCorruptIndex)
	}
	return vectors, dim, nil
}
