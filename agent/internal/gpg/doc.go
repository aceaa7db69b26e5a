// Package gpg checks detached OpenPGP signatures over collection rules
// against the trusted key ring shipped with the agent.
package gpg
