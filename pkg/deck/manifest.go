// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"context"
	"crypto/sha1"
	"encoding/hex"

	"github.com/Thermoquad/deckhand/pkg/export"
	"github.com/Thermoquad/deckhand/pkg/store"
)

// Exporter produces the ordered upload set.
type Exporter interface {
	Export(ctx context.Context) ([]export.File, error)
}

// ManifestStore loads and saves the last uploaded manifest.
type ManifestStore interface {
	LoadManifest() (store.Manifest, error)
	SaveManifest(m store.Manifest) error
}

// HashFile returns the hex SHA-1 digest of data.
func HashFile(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// BuildManifest hashes every file.
func BuildManifest(files []export.File) store.Manifest {
	m := make(store.Manifest, len(files))
	for _, f := range files {
		m[f.Name] = HashFile(f.Data)
	}
	return m
}

// Plan is the result of diffing an export set against a manifest.
type Plan struct {
	Files     []export.File
	Hashes    store.Manifest
	Changed   []export.File
	Unchanged []export.File
}

// Diff classifies each file as changed when its name is missing from prev
// or its hash differs. Entries of prev with no matching file are ignored.
func Diff(prev store.Manifest, files []export.File) Plan {
	plan := Plan{Files: files, Hashes: BuildManifest(files)}
	for _, f := range files {
		if old, ok := prev[f.Name]; ok && old == plan.Hashes[f.Name] {
			plan.Unchanged = append(plan.Unchanged, f)
			continue
		}
		plan.Changed = append(plan.Changed, f)
	}
	return plan
}

// Select returns the files to send: every file when force is set,
// otherwise only the changed ones.
func (p Plan) Select(force bool) []export.File {
	if force {
		return p.Files
	}
	return p.Changed
}

// Names returns the names of files in order.
func Names(files []export.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}
