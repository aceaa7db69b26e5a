package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Verifier checks a detached signature over a payload. A signature that does
// not match returns false with a nil error.
type Verifier interface {
	Verify(payload, signature []byte) (bool, error)
}

// RemovalLoader supplies the removal rules merged into every resolution.
type RemovalLoader interface {
	Load() (RemovalRules, error)
}

// Resolver turns one Source into a ResolvedConfig. A Resolver is meant for a
// single resolution; build a new one per run.
type Resolver struct {
	Source   Source
	Verifier Verifier
	Removals RemovalLoader

	// ValidateSignatures enables the verify step. When false the Verifier is
	// never called and every candidate is trusted.
	ValidateSignatures bool
}

// Resolve fetches, verifies and parses collection rules, then attaches the
// removal rules. Any error means no usable configuration was produced.
func (r *Resolver) Resolve(ctx context.Context) (*ResolvedConfig, error) {
	if r.Source == nil {
		return nil, errors.New("rules: resolver has no source")
	}
	if r.ValidateSignatures && r.Verifier == nil {
		return nil, errors.New("rules: signature validation enabled without a verifier")
	}

	cands, err := r.Source.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	payload, origin, err := r.accept(ctx, cands)
	if err != nil {
		return nil, err
	}

	var removals RemovalRules
	if r.Removals != nil {
		removals, err = r.Removals.Load()
		if err != nil {
			return nil, err
		}
	}

	return &ResolvedConfig{
		Source:          r.Source.Name(),
		Origin:          origin,
		CollectionRules: payload,
		RemovalRules:    removals,
	}, nil
}

// accept returns the first candidate that verifies and parses.
func (r *Resolver) accept(ctx context.Context, cands []Candidate) (Payload, string, error) {
	name := r.Source.Name()
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		if r.ValidateSignatures {
			ok, err := r.Verifier.Verify(c.Raw, c.Signature)
			if err != nil {
				return nil, "", fmt.Errorf("rules: verify %s: %w", c.Origin, err)
			}
			if !ok {
				if r.Source.Policy() == SkipFile {
					slog.Warn("rules: signature did not verify, skipping candidate",
						"source", name, "origin", c.Origin)
					continue
				}
				return nil, "", &SourceError{Source: name, Origin: c.Origin, Err: ErrInvalidSignature}
			}
			slog.Debug("rules: signature verified", "source", name, "origin", c.Origin)
		}

		p, err := r.Source.Parse(c)
		if err != nil {
			return nil, "", err
		}
		return p, c.Origin, nil
	}
	return nil, "", &SourceError{Source: name, Err: ErrMissingPayload}
}
