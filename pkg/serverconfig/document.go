package serverconfig

import (
	"os"
	"strings"

	"github.com/core-tools/hsu-mcservice/pkg/errors"

	"gopkg.in/yaml.v3"
)

// Document is the structured configuration store of one server installation.
type Document struct {
	Launcher LauncherSection `yaml:"launcher"`
	Server   ServerSection   `yaml:"server"`
	Ramdisk  RamdiskSection  `yaml:"ramdisk"`
}

type LauncherSection struct {
	LaunchPath string   `yaml:"launch_path"` // relative to the server directory
	Options    []string `yaml:"options"`     // JVM options without the leading dash
}

// ServerSection partitions the server's properties: Properties holds the
// operator's overrides, DefaultProperties everything discovered in the file.
type ServerSection struct {
	Properties        map[string]string `yaml:"properties"`
	DefaultProperties map[string]string `yaml:"default_properties"`
	Version           string            `yaml:"version"`
}

type RamdiskSection struct {
	Enabled  bool `yaml:"enabled"`
	Interval int  `yaml:"interval"` // minutes between saves
}

func NewDocument() *Document {
	return &Document{
		Server: ServerSection{
			Properties:        make(map[string]string),
			DefaultProperties: make(map[string]string),
		},
	}
}

// LoadDocument reads a document. JSON documents load as well since YAML is a
// superset of JSON.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration document", err).WithContext("path", path)
	}

	document := NewDocument()
	if err := yaml.Unmarshal(data, document); err != nil {
		return nil, errors.NewConfigError("failed to parse configuration document", err).WithContext("path", path)
	}
	if document.Server.Properties == nil {
		document.Server.Properties = make(map[string]string)
	}
	if document.Server.DefaultProperties == nil {
		document.Server.DefaultProperties = make(map[string]string)
	}

	if err := ValidateLaunchPath(document.Launcher.LaunchPath); err != nil {
		return nil, err
	}

	return document, nil
}

func SaveDocument(path string, document *Document) error {
	data, err := yaml.Marshal(document)
	if err != nil {
		return errors.NewInternalError("failed to encode configuration document", err)
	}
	return writeFileAtomic(path, data, 0644)
}

// ValidateLaunchPath keeps the jar inside the server directory.
func ValidateLaunchPath(path string) error {
	if strings.Contains(path, "..") {
		return errors.NewConfigError(`launch path cannot contain ".."`, nil).WithContext("launch_path", path)
	}
	return nil
}

func (d *Document) clone() *Document {
	clone := *d
	clone.Launcher.Options = append([]string(nil), d.Launcher.Options...)
	clone.Server.Properties = copyMap(d.Server.Properties)
	clone.Server.DefaultProperties = copyMap(d.Server.DefaultProperties)
	return &clone
}

func copyMap(source map[string]string) map[string]string {
	result := make(map[string]string, len(source))
	for key, value := range source {
		result[key] = value
	}
	return result
}
