// Package cli implements bucketctl, the command-line front end of the
// bucket messaging client.
//
// Every command is a cobra command bound to an App. The App unlocks the
// keystore, builds the configured storage provider, resolver and bucket key
// directory, and connects a client.Client on first use. The shell command
// keeps that connection open and runs command lines read from stdin,
// reporting online/offline changes as they happen.
package cli
