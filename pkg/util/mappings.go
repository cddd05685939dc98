package util

import (
	"fmt"
	"strings"
)

// ParseMappings parses a list of "key:value" strings such as
// "physnet1:eth1". Keys and values must be unique and non-empty.
func ParseMappings(mappings []string) (map[string]string, error) {
	result := make(map[string]string, len(mappings))
	values := make(map[string]string, len(mappings))
	for _, mapping := range mappings {
		mapping = strings.TrimSpace(mapping)
		if mapping == "" {
			continue
		}
		key, value, found := strings.Cut(mapping, ":")
		if !found {
			return nil, fmt.Errorf("invalid mapping: %q", mapping)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key == "" {
			return nil, fmt.Errorf("missing key in mapping: %q", mapping)
		}
		if value == "" {
			return nil, fmt.Errorf("missing value in mapping: %q", mapping)
		}
		if _, ok := result[key]; ok {
			return nil, fmt.Errorf("key %s in mapping %q not unique", key, mapping)
		}
		if _, ok := values[value]; ok {
			return nil, fmt.Errorf("value %s in mapping %q not unique", value, mapping)
		}
		result[key] = value
		values[value] = key
	}
	return result, nil
}
