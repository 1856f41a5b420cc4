package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage keeps uploaded blobs on local disk keyed by node id. The file
// manager only models metadata; content is opaque here.
type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, os.ModePerm); err != nil {
		return nil, err
	}
	return &LocalStorage{basePath: basePath}, nil
}

// pathFromID shards blobs into two-character prefix directories to keep any
// single directory from growing unbounded.
func (ls *LocalStorage) pathFromID(id string) string {
	if len(id) < 4 {
		return filepath.Join(ls.basePath, id)
	}
	return filepath.Join(ls.basePath, id[:2], id[2:4], id)
}

func (ls *LocalStorage) Save(id string, data io.Reader) error {
	filePath := ls.pathFromID(id)

	if err := os.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
		return err
	}

	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(file, data)
	return err
}

func (ls *LocalStorage) Get(id string) (io.ReadCloser, error) {
	file, err := os.Open(ls.pathFromID(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob for node %s not found: %w", id, err)
		}
		return nil, err
	}

	return file, nil
}

func (ls *LocalStorage) Delete(id string) error {
	err := os.Remove(ls.pathFromID(id))
	if os.IsNotExist(err) {
		return nil
	}

	return err
}
