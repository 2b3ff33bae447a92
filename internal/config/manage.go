package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// KeyInfo is one config entry resolved for display.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from the current
// config, sorted by key.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for key, val := range stringKeys(&cfg) {
		if isSecret(key) {
			continue
		}
		result = append(result, KeyInfo{Key: key, EnvVar: envName(key), Value: *val})
	}
	for key, val := range intKeys(&cfg) {
		result = append(result, KeyInfo{Key: key, EnvVar: envName(key), Value: strconv.Itoa(*val)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// SetKey writes a config key to the file backend.
func SetKey(key, value string) error {
	b := newFileBackend(defaultConfigPath())
	cfg := defaults()

	if _, ok := stringKeys(&cfg)[key]; ok {
		return b.SetString(key, value)
	}
	if _, ok := intKeys(&cfg)[key]; ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		return b.SetInt(key, i)
	}
	return fmt.Errorf("unknown config key: %q", key)
}

// UnsetKey removes a config key from the file backend, reverting it to its
// default or environment value.
func UnsetKey(key string) error {
	b := newFileBackend(defaultConfigPath())
	cfg := defaults()

	_, isString := stringKeys(&cfg)[key]
	_, isInt := intKeys(&cfg)[key]
	if !isString && !isInt {
		return fmt.Errorf("unknown config key: %q", key)
	}
	return b.Delete(key)
}

func isSecret(key string) bool {
	return strings.HasSuffix(key, "api_key") || strings.HasSuffix(key, "token")
}
