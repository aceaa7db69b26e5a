// Package collector gathers the host data named by resolved collection rules.
//
// Files copies every files[] entry of the rules into a per-run directory
// under the configured output dir, honouring removal rules: removed paths are
// skipped, lines matching a removal pattern are dropped and removal keywords
// are replaced with "keyword<N>". Command specs are counted but not run.
//
// Done writes metrics.prom, a Prometheus text exposition summarising the run,
// and returns the run directory. Packaging the directory for upload is left
// to the caller.
package collector
