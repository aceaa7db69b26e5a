package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Stdin envelope keys.
const (
	StdinRulesKey     = "uploader.json"
	StdinSignatureKey = "sig"
)

// StdinOrigin is the Candidate.Origin of rules read from standard input.
const StdinOrigin = "stdin"

// StdinSource reads a signed rules envelope from a stream, normally os.Stdin.
type StdinSource struct {
	r io.Reader
}

// NewStdinSource returns a StdinSource reading from r.
func NewStdinSource(r io.Reader) *StdinSource {
	return &StdinSource{r: r}
}

func (s *StdinSource) Name() string { return "stdin" }

func (s *StdinSource) Policy() SignaturePolicy { return Abort }

// Fetch decodes the envelope. The nested rules stay encoded until Parse so the
// signature is checked against the exact bytes that were signed.
func (s *StdinSource) Fetch(_ context.Context) ([]Candidate, error) {
	var env map[string]json.RawMessage
	if err := json.NewDecoder(s.r).Decode(&env); err != nil {
		return nil, s.malformed("decode envelope: %v", err)
	}
	if env == nil {
		return nil, s.malformed("envelope is not an object")
	}

	raw, ok := env[StdinRulesKey]
	if !ok {
		return nil, s.malformed("missing %q", StdinRulesKey)
	}
	var rules string
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, s.malformed("%q is not a string", StdinRulesKey)
	}

	c := Candidate{Origin: StdinOrigin, Raw: []byte(rules)}
	if rawSig, ok := env[StdinSignatureKey]; ok {
		var sig string
		if err := json.Unmarshal(rawSig, &sig); err != nil {
			return nil, s.malformed("%q is not a string", StdinSignatureKey)
		}
		c.Signature = []byte(sig)
	}
	return []Candidate{c}, nil
}

// Parse decodes the nested rules document. No version is required here.
func (s *StdinSource) Parse(c Candidate) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(c.Raw, &p); err != nil {
		return nil, s.malformed("decode %q: %v", StdinRulesKey, err)
	}
	if p == nil {
		return nil, s.malformed("%q is not an object", StdinRulesKey)
	}
	return p, nil
}

func (s *StdinSource) malformed(format string, args ...any) error {
	return &SourceError{
		Source: s.Name(),
		Origin: StdinOrigin,
		Err:    fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...)),
	}
}
