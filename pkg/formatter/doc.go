// Package formatter renders invocation outcomes as display text for the host.
//
// Formatting never fails: anything that cannot be laid out as labeled
// sections degrades to its string form.
package formatter
