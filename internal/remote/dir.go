package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/roach88/replica/internal/engine"
	"github.com/roach88/replica/internal/entity"
)

// DirSource reads one entity type from a directory export.
//
// Entities live under <root>/<type>/ in *.json files. A file holds either
// one entity or an array of entities. Other files are ignored.
type DirSource[E entity.Entity] struct {
	typ   entity.Type
	dir   string
	codec entity.Codec[E]
}

// NewDirSource creates a source for typ under root.
func NewDirSource[E entity.Entity](typ entity.Type, root string, codec entity.Codec[E]) (*DirSource[E], error) {
	if err := typ.Validate(); err != nil {
		return nil, err
	}
	if root == "" {
		return nil, fmt.Errorf("remote: export directory is required")
	}
	return &DirSource[E]{
		typ:   typ,
		dir:   filepath.Join(root, string(typ)),
		codec: codec,
	}, nil
}

// Dir returns the directory this source reads.
func (s *DirSource[E]) Dir() string {
	return s.dir
}

// FetchSince implements engine.Source.
func (s *DirSource[E]) FetchSince(ctx context.Context, since time.Time) ([]E, error) {
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]E, 0, len(all))
	for _, e := range all {
		if e.LastUpdated().After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListIDs implements engine.Source.
func (s *DirSource[E]) ListIDs(ctx context.Context) ([]string, error) {
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(all))
	for i, e := range all {
		ids[i] = e.ID()
	}
	return ids, nil
}

// load reads every entity of the export in file name order.
func (s *DirSource[E]) load(ctx context.Context) ([]E, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: export directory %s does not exist", engine.ErrNetwork, s.dir)
		}
		return nil, fmt.Errorf("%w: read %s: %w", engine.ErrNetwork, s.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var out []E
	seen := make(map[string]string)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(s.dir, name)
		entities, err := s.readFile(path)
		if err != nil {
			return nil, err
		}
		for _, e := range entities {
			if prev, dup := seen[e.ID()]; dup {
				return nil, fmt.Errorf("%w: %s: id %q also defined in %s", engine.ErrNetwork, path, e.ID(), prev)
			}
			seen[e.ID()] = path
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *DirSource[E]) readFile(path string) ([]E, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", engine.ErrNetwork, path, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] != '[' {
		e, err := s.codec.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", engine.ErrNetwork, path, err)
		}
		return []E{e}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", engine.ErrNetwork, path, err)
	}
	out := make([]E, 0, len(items))
	for i, raw := range items {
		e, err := s.codec.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %w", engine.ErrNetwork, path, i, err)
		}
		out = append(out, e)
	}
	return out, nil
}
