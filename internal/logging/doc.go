// Package logging provides file-based logging with rotation for Emberboard.
// Structured JSON logs are written to ~/.emberboard/logs/ so synonym imports
// and index synchronizations can be audited after the fact; stderr output is
// optional and intended for interactive debugging.
package logging
