package questionset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// Loader fetches the data of one set.
type Loader interface {
	Load(ctx context.Context, typ string, setID int) (*Data, error)
}

// FileLoader reads sets from <Dir>/<type>/<setId>.json, .yaml or .yml.
type FileLoader struct {
	Dir string
}

var setExtensions = []string{".json", ".yaml", ".yml"}

func (l FileLoader) Load(ctx context.Context, typ string, setID int) (*Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := filepath.Join(l.Dir, typ, strconv.Itoa(setID))
	for _, ext := range setExtensions {
		raw, err := os.ReadFile(base + ext)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s set %d: %w", typ, setID, err)
		}
		return ParseData(raw, ext != ".json", typ, setID)
	}
	return nil, fmt.Errorf("%s set %d in %s: %w", typ, setID, l.Dir, ErrSetNotFound)
}

// StaticLoader serves sets from memory. Useful for tests and demos.
type StaticLoader struct {
	sets map[string]*Data
}

func NewStaticLoader(sets ...*Data) *StaticLoader {
	l := &StaticLoader{sets: make(map[string]*Data, len(sets))}
	for _, d := range sets {
		l.sets[cacheKey(d.Type, d.SetID)] = d
	}
	return l
}

func (l *StaticLoader) Load(_ context.Context, typ string, setID int) (*Data, error) {
	if d, ok := l.sets[cacheKey(typ, setID)]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%s set %d: %w", typ, setID, ErrSetNotFound)
}

func cacheKey(typ string, setID int) string {
	return typ + "/" + strconv.Itoa(setID)
}
