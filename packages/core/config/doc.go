// Package config loads contractspec settings from a JSON file.
//
// The first of .contractspec.json, contractspec.config.json or
// .contractspecrc found in the working directory is used; without one the
// defaults apply. Command-line flags are merged on top with Merge. Boolean
// settings are pointers so an explicit false survives a merge.
package config
