package fileserver

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/juju/errors"

	"github.com/goliatone/go-repository-router/router"
)

// Link handling modes.
const (
	LinksManage = "manage"
	LinksFollow = "follow"
)

// File types reported in Metadata.Type.
const (
	TypeFile      = "file"
	TypeDirectory = "directory"
	TypeLink      = "link"
)

// Metadata describes a file below the served root.
type Metadata struct {
	router.Envelope `yaml:",inline" msgpack:",inline"`

	Path        string    `json:"path" yaml:"path" msgpack:"path"`
	Type        string    `json:"type" yaml:"type" msgpack:"type"`
	Size        int64     `json:"size" yaml:"size" msgpack:"size"`
	Mode        string    `json:"mode" yaml:"mode" msgpack:"mode"`
	MTime       time.Time `json:"mtime" yaml:"mtime" msgpack:"mtime"`
	Checksum    string    `json:"checksum,omitempty" yaml:"checksum,omitempty" msgpack:"checksum,omitempty"`
	Destination string    `json:"destination,omitempty" yaml:"destination,omitempty" msgpack:"destination,omitempty"`
	Links       string    `json:"links" yaml:"links" msgpack:"links"`
}

// Name implements router.Instance.
func (m *Metadata) Name() string { return m.Path }

// Model builds empty metadata values.
var Model router.Model = router.ModelFunc(func(key string) router.Instance {
	return &Metadata{Path: key, Links: LinksManage}
})

// collect fills m from the file at full.
func (m *Metadata) collect(full string) error {
	stat := os.Lstat
	if m.Links == LinksFollow {
		stat = os.Stat
	}
	info, err := stat(full)
	if err != nil {
		return errors.Trace(err)
	}

	m.Size = info.Size()
	m.Mode = fmt.Sprintf("%04o", info.Mode().Perm())
	m.MTime = info.ModTime().UTC()

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		m.Type = TypeLink
		dest, err := os.Readlink(full)
		if err != nil {
			return errors.Annotatef(err, "reading link %s", m.Path)
		}
		m.Destination = dest
	case info.IsDir():
		m.Type = TypeDirectory
	default:
		m.Type = TypeFile
		sum, err := checksum(full)
		if err != nil {
			return err
		}
		m.Checksum = sum
	}
	return nil
}

func checksum(full string) (string, error) {
	f, err := os.Open(full)
	if err != nil {
		return "", errors.Trace(err)
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Annotatef(err, "hashing %s", full)
	}
	return fmt.Sprintf("xxh64:%016x", h.Sum64()), nil
}
