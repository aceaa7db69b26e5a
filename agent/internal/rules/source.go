package rules

import "context"

// SignaturePolicy decides what a failed signature check does to a resolution.
type SignaturePolicy int

const (
	// Abort fails the whole resolution with ErrInvalidSignature.
	Abort SignaturePolicy = iota
	// SkipFile drops the offending candidate and tries the next one.
	SkipFile
)

func (p SignaturePolicy) String() string {
	switch p {
	case Abort:
		return "abort"
	case SkipFile:
		return "skip-file"
	default:
		return "unknown"
	}
}

// Candidate is one raw rules payload and its detached signature, as fetched
// from a source. Signature is nil when the medium carried none.
type Candidate struct {
	Origin    string
	Raw       []byte
	Signature []byte
}

// Source is a medium that supplies collection rules.
type Source interface {
	// Name is a short identifier used in logs and errors.
	Name() string

	// Policy reports how signature failures of this source are handled.
	Policy() SignaturePolicy

	// Fetch returns the candidates in preference order. An empty result
	// means the source has nothing to offer.
	Fetch(ctx context.Context) ([]Candidate, error)

	// Parse turns a verified candidate into collection rules.
	Parse(c Candidate) (Payload, error)
}
