package main

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"
)

// DefaultTLDConfigFile is read when --tld-config is not given
const DefaultTLDConfigFile = "TLD.conf"

// defaultTLDAlternation is used when no TLD configuration can be read
const defaultTLDAlternation = "com|org|net|int|edu|gov|mil|arpa"

// loadTLDAlternation renders the TLD list at path as a regex alternation
// fragment. Tokens are copied verbatim, without escaping.
func loadTLDAlternation(path string, logger *zap.Logger) string {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("No TLD config found. Setting a default TLD configuration...", zap.String("path", path))
		} else {
			logger.Warn("TLD config unreadable, using default TLD configuration", zap.String("path", path), zap.Error(err))
		}
		return defaultTLDAlternation
	}
	return tldAlternation(string(data))
}

// tldAlternation strips one trailing newline and joins the remaining lines
// with "|".
func tldAlternation(list string) string {
	list = normalizeNewlines(list)
	list = strings.TrimSuffix(list, "\n")
	return strings.ReplaceAll(list, "\n", "|")
}
