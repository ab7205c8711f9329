package bans

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// FileStore keeps one banned id per line in a plain text file.
type FileStore struct {
	path string
	log  zerolog.Logger
}

// NewFileStore returns a store for path. The file and its directory are
// created on the first Save.
func NewFileStore(path string, log zerolog.Logger) *FileStore {
	return &FileStore{path: path, log: log}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the list. A missing file is an empty list; lines that are not
// integers are skipped with a warning.
func (s *FileStore) Load() ([]int64, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var ids []int64
	sc := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			s.log.Warn().Str("path", s.path).Int("line", line).Str("value", text).Msg("skipping invalid ban entry")
			continue
		}
		ids = append(ids, id)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.path, err)
	}
	return ids, nil
}

// Save rewrites the file with ids. The new content is written to a temp
// file in the same directory and renamed over the old one.
func (s *FileStore) Save(ids []int64) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	var buf bytes.Buffer
	for _, id := range ids {
		buf.WriteString(strconv.FormatInt(id, 10))
		buf.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(dir, ".banned-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) String() string {
	return "file:" + s.path
}
