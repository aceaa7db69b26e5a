package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// SignatureSuffix is appended to a cached rules path to find its detached
// signature.
const SignatureSuffix = ".asc"

// OriginKey is added to file-sourced rules and holds the path they came from.
const OriginKey = "file"

// CachedFile is the raw content of a cached rules file and its signature.
type CachedFile struct {
	Raw       []byte
	Signature []byte
}

// DiskReader looks up cached rules. TryDisk returns nil, nil when nothing is
// cached at path.
type DiskReader interface {
	TryDisk(path string) (*CachedFile, error)
}

// DiskFunc adapts a function to DiskReader.
type DiskFunc func(path string) (*CachedFile, error)

func (f DiskFunc) TryDisk(path string) (*CachedFile, error) { return f(path) }

// OSDisk reads cached rules from the local filesystem. Missing and empty
// files are reported as absent.
type OSDisk struct{}

func (OSDisk) TryDisk(path string) (*CachedFile, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	sig, err := os.ReadFile(path + SignatureSuffix)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("rules: read signature for %s: %w", path, err)
	}
	return &CachedFile{Raw: raw, Signature: sig}, nil
}

// FileSource reads rules from the on-disk cache, trying each path in order.
type FileSource struct {
	disk  DiskReader
	paths []string
}

// NewFileSource returns a FileSource over paths, most preferred first.
func NewFileSource(disk DiskReader, paths ...string) *FileSource {
	return &FileSource{disk: disk, paths: paths}
}

func (s *FileSource) Name() string { return "file" }

func (s *FileSource) Policy() SignaturePolicy { return SkipFile }

// Fetch returns one candidate per path that has cached content.
func (s *FileSource) Fetch(ctx context.Context) ([]Candidate, error) {
	var out []Candidate
	for _, path := range s.paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cf, err := s.disk.TryDisk(path)
		if err != nil {
			return nil, err
		}
		if cf == nil {
			continue
		}
		out = append(out, Candidate{Origin: path, Raw: cf.Raw, Signature: cf.Signature})
	}
	return out, nil
}

// Parse decodes a cached rules file. The result must carry a string version and is
// annotated with the path it was read from.
func (s *FileSource) Parse(c Candidate) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(c.Raw, &p); err != nil {
		return nil, &SourceError{Source: s.Name(), Origin: c.Origin,
			Err: fmt.Errorf("%w: decode: %v", ErrInvalidRules, err)}
	}
	if p == nil {
		return nil, &SourceError{Source: s.Name(), Origin: c.Origin, Err: ErrMissingPayload}
	}
	if _, ok := p.Version(); !ok {
		return nil, &SourceError{Source: s.Name(), Origin: c.Origin, Err: ErrMissingVersion}
	}
	p[OriginKey] = c.Origin
	return p, nil
}
