package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ConfigReader gives every component access to its own section of the YAML config file
type ConfigReader struct {
	logger            log.FieldLogger
	configFilePath    string
	configFileContent map[string]*yaml.Node
	configChanged     bool
	lck               sync.Mutex
}

// GetDefaultPath returns the config file location in the XDG config dir, e.g.
// ~/.config/bluetooth-timeout/config.yml
func GetDefaultPath(productName string) string {
	p, err := xdg.ConfigFile(filepath.Join(productName, "config.yml"))
	if err != nil {
		return filepath.Join(xdg.ConfigHome, productName, "config.yml")
	}
	return p
}

// NewConfigReader reads the config file at configFilePath, a missing file is treated as empty
func NewConfigReader(logger log.FieldLogger, configFilePath string) (*ConfigReader, error) {
	cr := &ConfigReader{logger: logger, configFilePath: configFilePath, configFileContent: map[string]*yaml.Node{}}

	byteValue, err := os.ReadFile(configFilePath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Infof("Config file %v does not exist, using defaults", configFilePath)
		cr.configChanged = true
		return cr, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %v: %w", configFilePath, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(byteValue, &doc); err != nil {
		return nil, fmt.Errorf("cannot parse config file %v: %w", configFilePath, err)
	}
	if err := cr.splitSections(&doc); err != nil {
		return nil, fmt.Errorf("cannot parse config file %v: %w", configFilePath, err)
	}
	return cr, nil
}

// splitSections keeps the node of every top level key, an empty document has no sections
func (c *ConfigReader) splitSections(doc *yaml.Node) error {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: top level must be a mapping of sections", ErrInvalidConfig)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		c.configFileContent[root.Content[i].Value] = root.Content[i+1]
	}
	return nil
}

// ReadSectionWithDefaults decodes the section sectionName onto configStruct, which must be a
// pointer to a struct pre-filled with defaults. Keys missing in the file keep their default.
// If the section does not exist at all, the defaults are added to the file content.
func (c *ConfigReader) ReadSectionWithDefaults(sectionName string, configStruct interface{}) error {
	c.lck.Lock()
	defer c.lck.Unlock()

	node, ok := c.configFileContent[sectionName]
	if ok && node != nil {
		if err := node.Decode(configStruct); err != nil {
			return fmt.Errorf("%w: cannot decode config section \"%v\": %w", ErrInvalidConfig, sectionName, err)
		}
		return nil
	}

	newNode := &yaml.Node{}
	if err := newNode.Encode(configStruct); err != nil {
		return fmt.Errorf("cannot encode defaults for config section \"%v\": %w", sectionName, err)
	}
	c.configFileContent[sectionName] = newNode
	c.configChanged = true
	return nil
}

// WriteBackConfigIfChanged writes the config file (including sections that only consist of
// defaults) if anything was added since it was read
func (c *ConfigReader) WriteBackConfigIfChanged() error {
	c.lck.Lock()
	defer c.lck.Unlock()

	if !c.configChanged {
		return nil
	}
	byteValue, err := yaml.Marshal(c.configFileContent)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.configFilePath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(c.configFilePath, byteValue, 0o644); err != nil {
		return err
	}
	c.logger.Infof("Wrote config file %v", c.configFilePath)
	c.configChanged = false
	return nil
}

// GetConfigFilePath returns the path the reader was created with
func (c *ConfigReader) GetConfigFilePath() string {
	return c.configFilePath
}

// ErrInvalidConfig is wrapped by all validation errors, the daemon refuses to start on it
var ErrInvalidConfig = errors.New("invalid configuration")
