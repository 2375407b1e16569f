package serverconfig

import (
	"bufio"
	"bytes"
	"io"
	"sort"
	"strings"

	"github.com/core-tools/hsu-mcservice/pkg/errors"
)

const propertiesBanner = "#This file is autogenerated by mc_as_a_service\n" +
	"#please make changes there if you wish to keep them\n"

type Property struct {
	Key   string
	Value string
}

// ParseProperties returns the key=value lines of a properties file in file
// order. Comments, blank lines and lines without "=" are skipped.
func ParseProperties(r io.Reader) ([]Property, error) {
	var properties []Property

	// lines have no length limit
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if property, ok := parsePropertyLine(strings.TrimSuffix(line, "\n")); ok {
				properties = append(properties, property)
			}
		}
		if err == io.EOF {
			return properties, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// ValidateProperty rejects a key or value that would not read back
// unchanged from the rendered file.
func ValidateProperty(key, value string) error {
	switch {
	case key == "":
		return errors.NewValidationError("property key cannot be empty", nil)
	case strings.TrimSpace(key) != key:
		return errors.NewValidationError("property key has surrounding whitespace", nil).WithContext("key", key)
	case strings.HasPrefix(key, "#"):
		return errors.NewValidationError("property key cannot start with #", nil).WithContext("key", key)
	case strings.ContainsAny(key, "=\r\n"):
		return errors.NewValidationError("property key cannot contain '=' or line breaks", nil).WithContext("key", key)
	case strings.ContainsAny(value, "\r\n"):
		return errors.NewValidationError("property value cannot contain line breaks", nil).WithContext("key", key)
	case strings.HasSuffix(value, "$"):
		return errors.NewValidationError("property value cannot end with $", nil).WithContext("key", key)
	}
	return nil
}

func parsePropertyLine(line string) (Property, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return Property{}, false
	}

	key, value, found := strings.Cut(line, "=")
	if !found {
		return Property{}, false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return Property{}, false
	}

	return Property{
		Key:   key,
		Value: strings.TrimRight(value, "\r\n$"),
	}, true
}

// RenderProperties writes the banner followed by every key of both maps in
// key order, taking the override value where one exists.
func RenderProperties(overrides, defaults map[string]string) []byte {
	keys := make([]string, 0, len(overrides)+len(defaults))
	for key := range overrides {
		keys = append(keys, key)
	}
	for key := range defaults {
		if _, ok := overrides[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var buffer bytes.Buffer
	buffer.WriteString(propertiesBanner)
	for _, key := range keys {
		value, ok := overrides[key]
		if !ok {
			value = defaults[key]
		}
		buffer.WriteString(key)
		buffer.WriteByte('=')
		buffer.WriteString(value)
		buffer.WriteByte('\n')
	}
	return buffer.Bytes()
}

// mergeProperties folds parsed file lines into the two maps and reports
// whether either map changed. Unknown keys land in defaults; a drifted key is
// updated in the map that holds it, overrides first. A key left in both maps
// is dropped from defaults afterwards.
func mergeProperties(found []Property, overrides, defaults map[string]string) []string {
	var changed []string

	for _, property := range found {
		if value, ok := overrides[property.Key]; ok {
			if value != property.Value {
				overrides[property.Key] = property.Value
				changed = append(changed, property.Key)
			}
			continue
		}
		if value, ok := defaults[property.Key]; ok {
			if value != property.Value {
				defaults[property.Key] = property.Value
				changed = append(changed, property.Key)
			}
			continue
		}
		defaults[property.Key] = property.Value
		changed = append(changed, property.Key)
	}

	for key := range overrides {
		if _, ok := defaults[key]; ok {
			delete(defaults, key)
			changed = append(changed, key)
		}
	}

	return changed
}
