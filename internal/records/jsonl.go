package records

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// #region writer
// Writer appends one JSON document per line. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
	c   io.Closer
}

// NewWriter encodes into w. HTML characters are written verbatim so code
// and descriptions stay readable.
func NewWriter(w io.Writer) *Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	out := &Writer{enc: enc}
	if c, ok := w.(io.Closer); ok {
		out.c = c
	}
	return out
}

// Create opens path for writing, truncating it, and creates parent
// directories.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return NewWriter(f), nil
}

// Write encodes v as one line.
func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return nil
}

// Close closes the underlying file, if any.
func (w *Writer) Close() error {
	if w.c == nil {
		return nil
	}
	return w.c.Close()
}
// #endregion writer

// #region reader
// maxLine bounds one record; scripts with full history can be long.
const maxLine = 16 << 20

// Decode reads every line of r into T. Blank lines are skipped.
func Decode[T any](r io.Reader) ([]T, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	var out []T
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(strings.TrimSpace(string(b))) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return out, nil
}

// ReadFile decodes every record of a JSONL file.
func ReadFile[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	out, err := Decode[T](f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// WriteFile replaces path with recs, one per line.
func WriteFile[T any](path string, recs []T) error {
	w, err := Create(path)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if err := w.Write(r); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
// #endregion reader

// #region shards
// ShardPath names worker i's shard of path: out.jsonl becomes out_3.jsonl.
func ShardPath(path string, i int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(path, ext), i, ext)
}

// Merge concatenates shard files into path sorted by id, then removes the
// shards. Missing shards are skipped; a worker that saw no input writes none.
func Merge[T Identified](path string, shards []string) (int, error) {
	var all []T
	for _, s := range shards {
		recs, err := ReadFile[T](s)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("merge: %w", err)
		}
		all = append(all, recs...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].RecordID() < all[j].RecordID() })
	if err := WriteFile(path, all); err != nil {
		return 0, fmt.Errorf("merge: %w", err)
	}
	for _, s := range shards {
		if err := os.Remove(s); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return len(all), fmt.Errorf("remove shard: %w", err)
		}
	}
	return len(all), nil
}

// #endregion shards
