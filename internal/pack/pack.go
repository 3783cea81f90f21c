// Package pack bundles several named Intel-HEX bytecode images into a
// single Unix ar archive, so a VM distribution can ship more than one
// program, and cmd/heapvm can pick one out by name at run time.
package pack

import (
	"fmt"
	"io"
	"sort"

	"github.com/blakesmith/ar"
)

// Bundle writes the named images to w as a Unix ar archive. Names are
// written in sorted order so Bundle is deterministic.
func Bundle(w io.Writer, images map[string][]byte) error {
	aw := ar.NewWriter(w)
	if err := aw.WriteGlobalHeader(); err != nil {
		return fmt.Errorf("pack: writing archive header: %w", err)
	}

	names := make([]string, 0, len(images))
	for name := range images {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		data := images[name]
		hdr := &ar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(data)),
		}
		if err := aw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("pack: writing header for %s: %w", name, err)
		}
		if _, err := aw.Write(data); err != nil {
			return fmt.Errorf("pack: writing body for %s: %w", name, err)
		}
	}
	return nil
}

// Extract reads a Unix ar archive and returns its members as a name-to-
// bytes map.
func Extract(r io.Reader) (map[string][]byte, error) {
	reader := ar.NewReader(r)
	out := make(map[string][]byte)
	for {
		hdr, err := reader.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("pack: reading archive: %w", err)
		}
		data := make([]byte, hdr.Size)
		if _, err := io.ReadFull(reader, data); err != nil {
			return nil, fmt.Errorf("pack: reading member %s: %w", hdr.Name, err)
		}
		out[hdr.Name] = data
	}
}
