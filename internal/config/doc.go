// Package config loads the tracker's YAML configuration.
//
// Values may reference environment variables as ${VAR}. A .env file next to
// the config file, if present, is loaded into the environment first; variables
// already set in the process environment win.
package config
