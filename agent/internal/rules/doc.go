// Package rules resolves the collection rules the agent applies on a run.
//
// A Source fetches raw rule candidates from its medium: StdinSource reads a
// signed envelope {"uploader.json": "...", "sig": "..."} from standard input,
// FileSource reads the on-disk cache and its fallback together with each
// file's detached signature (<path>.asc).
//
// Resolver drives one resolution: fetch, verify (when signature validation is
// enabled), parse, then merge the removal rules. What happens when a signature
// does not verify depends on the source's SignaturePolicy: stdin aborts the
// whole resolution, files are skipped one at a time.
//
// Errors are classified with sentinels (ErrMalformedInput, ErrInvalidSignature,
// ErrMissingVersion, ErrMissingPayload). The last two both match
// ErrInvalidRules.
package rules
