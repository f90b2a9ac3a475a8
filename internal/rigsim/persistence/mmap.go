// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/ffutop/gasmix/internal/rigsim/model"
)

// MmapStorage maps a unit image into memory; the kernel writes it back.
type MmapStorage struct {
	path string
	file *os.File
	data mmap.MMap
}

func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{path: path}
}

// Load loads the data model by memory-mapping the file.
func (ms *MmapStorage) Load() (*model.DataModel, error) {
	f, err := openImage(ms.path)
	if err != nil {
		return nil, err
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", ms.path, err)
	}
	ms.file = f
	ms.data = data

	return mapBytesToModel(data), nil
}

// Save flushes the mapping to disk.
func (ms *MmapStorage) Save(m *model.DataModel) error {
	if ms.data == nil {
		return fmt.Errorf("mmap data is nil")
	}
	return ms.data.Flush()
}

// OnWrite flushes the mapping after each bus write.
func (ms *MmapStorage) OnWrite(table model.TableType, address, quantity uint16) {
	if ms.data == nil {
		return
	}
	if err := ms.data.Flush(); err != nil {
		slog.Error("failed to flush register image", "path", ms.path, "table", table, "err", err)
	}
}

// Close unmaps the image and closes the file. The mapping is flushed
// first so that a crash after Close cannot lose the last writes.
func (ms *MmapStorage) Close() error {
	var errs []error
	if ms.data != nil {
		errs = append(errs, ms.data.Flush(), ms.data.Unmap())
		ms.data = nil
	}
	if ms.file != nil {
		errs = append(errs, ms.file.Close())
		ms.file = nil
	}
	return errors.Join(errs...)
}
