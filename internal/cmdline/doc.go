// Package cmdline renders the server command line from an options store.
package cmdline
