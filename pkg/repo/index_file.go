package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nyxforge/gitcore/pkg/index"
)

func readIndexFile(path string) (*index.Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return index.New(), nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}
	idx, err := index.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return idx, nil
}

func writeIndexFile(path string, idx *index.Index) error {
	data, err := index.Encode(idx)
	if err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-index-*")
	if err != nil {
		return fmt.Errorf("write index: tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write index: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write index: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write index: rename: %w", err)
	}
	return nil
}
