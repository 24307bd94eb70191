// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

// Manifest maps an exported filename to the hex digest of its content.
// It records what the deck is believed to hold after the last upload.
type Manifest map[string]string

// Clone returns an independent copy.
func (m Manifest) Clone() Manifest {
	out := make(Manifest, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge returns a copy of m updated with every entry of other.
// Entries only present in m are kept.
func (m Manifest) Merge(other Manifest) Manifest {
	out := m.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}
