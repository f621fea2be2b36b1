// Package config manages the user configuration file for the probe tools.
//
// The configuration lives in a platform-appropriate directory (XDG on
// Linux/macOS, LOCALAPPDATA on Windows) as YAML and holds the shared probe
// identity plus per-role defaults. Command-line flags override anything in
// the file; the file exists so both roles agree on the identity without
// repeating it on every invocation.
//
// Loading is lazy and cached process-wide; Save performs an atomic
// temp-file-and-rename write so a crash never leaves a torn file.
package config
