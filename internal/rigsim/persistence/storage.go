// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"path/filepath"

	"github.com/ffutop/gasmix/internal/config"
	"github.com/ffutop/gasmix/internal/rigsim/model"
)

// Storage persists the register image of one simulated unit.
type Storage interface {
	// Load returns the model, creating an empty one when nothing is stored yet.
	Load() (*model.DataModel, error)

	// Save flushes the current model.
	Save(model *model.DataModel) error

	// OnWrite is called after every bus write that changed the model.
	OnWrite(table model.TableType, address, quantity uint16)

	Close() error
}

// Open returns the storage selected by cfg for one unit.
// File backed kinds keep one image per unit under cfg.Path.
func Open(cfg config.PersistenceConfig, unit byte) (Storage, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "file", "mmap":
		if cfg.Path == "" {
			return nil, fmt.Errorf("persistence %q needs a data directory", cfg.Type)
		}
		path := filepath.Join(cfg.Path, fmt.Sprintf("unit-%03d.bin", unit))
		if cfg.Type == "file" {
			return NewFileStorage(path), nil
		}
		return NewMmapStorage(path), nil
	default:
		return nil, fmt.Errorf("unknown persistence type %q", cfg.Type)
	}
}
