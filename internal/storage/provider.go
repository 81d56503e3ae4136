// Package storage defines the file-system abstraction over one replica's records.
package storage

import "time"

// FileMeta describes one record file found in a replica.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Provider is the interface for replica file operations. All paths are
// relative to the replica root and use forward slashes.
type Provider interface {
	// Root returns the absolute directory of the replica.
	Root() string
	// List returns metadata for every .json record under dir.
	List(dir string) ([]FileMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Exists reports whether a file is present at path.
	Exists(path string) (bool, error)
}
