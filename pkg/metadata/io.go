package metadata

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/matzehuels/nftgen/internal/fsx"
	"github.com/matzehuels/nftgen/pkg/errors"
)

// Marshal serializes a record as compact JSON without HTML escaping. Every
// write of a record goes through Marshal so that rewrites are byte-stable.
func Marshal(r Record) ([]byte, error) {
	if r.Attributes == nil {
		r.Attributes = []Attribute{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, errors.Wrap(errors.ErrCodeJSON, err, "encode metadata %q", r.Name)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Unmarshal parses a record.
func Unmarshal(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, errors.Wrap(errors.ErrCodeJSON, err, "decode metadata")
	}
	return r, nil
}

// Read loads the record stored at path.
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, errors.Wrap(errors.ErrCodeIO, err, "read metadata %s", path)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, errors.Wrap(errors.ErrCodeJSON, err, "parse metadata %s", path)
	}
	return r, nil
}

// Writer persists records under one directory, named by index.
type Writer struct {
	Dir string
}

// NewWriter creates dir if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "create metadata directory %s", dir)
	}
	return &Writer{Dir: dir}, nil
}

// Write stores r as {Dir}/{index}, atomically.
func (w *Writer) Write(index int, r Record) error {
	return writeFile(w.Dir, strconv.Itoa(index), r)
}

// Path returns the file path for index.
func (w *Writer) Path(index int) string {
	return filepath.Join(w.Dir, strconv.Itoa(index))
}

func writeFile(dir, name string, r Record) error {
	data, err := Marshal(r)
	if err != nil {
		return err
	}
	if err := fsx.WriteFileAtomic(dir, name, data); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "write metadata %s", filepath.Join(dir, name))
	}
	return nil
}

// Entry is a record together with its item index.
type Entry struct {
	Index  int
	Record Record
}

// ReadAll loads every record in dir whose filename is a non-negative
// integer, sorted by index. Other files are ignored.
func ReadAll(dir string) ([]Entry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read metadata directory %s", dir)
	}

	var out []Entry
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		idx, err := strconv.Atoi(e.Name())
		if err != nil || idx < 0 {
			continue
		}
		r, err := Read(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Index: idx, Record: r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}
