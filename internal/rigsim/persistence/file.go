// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/gasmix/internal/rigsim/model"
)

// FileStorage keeps a unit image in a regular file, rewriting it after each bus write.
type FileStorage struct {
	path string
	file *os.File
	data []byte
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Load reads the image, creating or resizing the file as needed.
func (fs *FileStorage) Load() (*model.DataModel, error) {
	f, err := openImage(fs.path)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read %s: %w", fs.path, err)
	}
	fs.file = f
	fs.data = data

	return mapBytesToModel(data), nil
}

// Save writes the image to disk.
func (fs *FileStorage) Save(m *model.DataModel) error {
	return fs.sync()
}

// OnWrite syncs the whole image; a unit image is small.
func (fs *FileStorage) OnWrite(table model.TableType, address, quantity uint16) {
	if err := fs.sync(); err != nil {
		slog.Error("failed to sync register image", "path", fs.path, "table", table, "err", err)
	}
}

func (fs *FileStorage) sync() error {
	if fs.data == nil || fs.file == nil {
		return nil
	}
	if _, err := fs.file.WriteAt(fs.data, 0); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := fs.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close the file.
func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}

// openImage opens path read-write and sizes it to one unit image.
func openImage(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(totalSize) {
		if err := f.Truncate(int64(totalSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize %s: %w", path, err)
		}
	}
	return f, nil
}
