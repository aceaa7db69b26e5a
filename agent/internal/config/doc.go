// Package config loads the agent configuration file (insights-agent.yaml)
// and watches files for changes.
//
// Load(path) reads the YAML file, applies defaults (signature validation on,
// rules cache in /etc/insights-client, output in /var/tmp/insights-client),
// then validates required fields. The default config path may be absent.
//
// Watch(ctx, paths, onChange) uses fsnotify on the parent directories of
// paths and calls onChange with the path of each written or created file.
package config
