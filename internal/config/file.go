package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// unprefixed keys keep the names the original deployment used.
var unprefixed = map[string]bool{
	"AUTH_TOKEN":   true,
	"PORT":         true,
	"DATABASE_URL": true,
}

// applyFile reads a flat YAML document such as
//
//	store: remote
//	ttl: 10m
//	s3_bucket: pdfs
//
// and exports each entry as its environment key (FLATDROP_STORE, ...) unless
// the environment already defines it.
func applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var values map[string]interface{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	for key, raw := range values {
		envKey := fileKeyToEnv(key)
		if _, set := os.LookupEnv(envKey); set {
			continue
		}
		if err := os.Setenv(envKey, fmt.Sprint(raw)); err != nil {
			return fmt.Errorf("apply %s: %w", key, err)
		}
	}
	return nil
}

func fileKeyToEnv(key string) string {
	k := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(key), "-", "_"))
	if unprefixed[k] || strings.HasPrefix(k, "FLATDROP_") {
		return k
	}
	return "FLATDROP_" + k
}
