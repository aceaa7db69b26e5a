// Package removal loads the exclusion lists that keep files, commands and
// content out of a collection.
//
// Removal files are INI documents. Entries live under a [remove] section (or
// at the top of the file) as comma-separated lists:
//
//	[remove]
//	files=/etc/cron.deny,/etc/hosts
//	patterns=password,secret
//
// Every configured path is probed on its own. Lists from all existing files
// are concatenated in path order, system file first.
package removal
