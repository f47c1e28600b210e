// Package config loads application configuration from CORPUS_-prefixed
// environment variables with validated defaults.
package config
