// Package appconfig resolves an application's configuration file into the
// value object the sandbox and contract clauses consume. Non-Java apps use
// a *.yaml file in the application root; Java apps use an appengine-web.xml
// under WEB-INF/ with a sibling web.xml.
package appconfig

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/melih/lighthouse-verify/internal/core/domain"
)

// XMLConfigName is the file name that marks a Java application.
const XMLConfigName = "appengine-web.xml"

type yamlConfig struct {
	VM          bool `yaml:"vm"`
	HealthCheck *struct {
		EnableHealthCheck *bool `yaml:"enable_health_check"`
	} `yaml:"health_check"`
}

type xmlConfig struct {
	XMLName     xml.Name `xml:"appengine-web-app"`
	VM          string   `xml:"vm"`
	HealthCheck *struct {
		EnableHealthCheck string `xml:"enable-health-check"`
	} `xml:"health-check"`
}

// Load parses the configuration file at path.
func Load(path string) (domain.ApplicationConfiguration, error) {
	var cfg domain.ApplicationConfiguration

	if _, err := os.Stat(path); err != nil {
		return cfg, fmt.Errorf("config file %q could not be resolved: %w", path, err)
	}

	switch {
	case strings.HasSuffix(path, ".yaml"):
		return loadYAML(path)
	case filepath.Base(path) == XMLConfigName:
		return loadXML(path)
	default:
		return cfg, fmt.Errorf("%q is not a valid configuration file: use a .yaml file or %s", path, XMLConfigName)
	}
}

// AppDir derives the application root directory from the config file
// location. For Java apps the xml lives under WEB-INF/, one level below
// the root of the archive.
func AppDir(configPath string) string {
	dir := filepath.Dir(configPath)
	if strings.HasSuffix(configPath, ".yaml") {
		return dir
	}
	return filepath.Dir(dir)
}

func loadYAML(path string) (domain.ApplicationConfiguration, error) {
	var cfg domain.ApplicationConfiguration

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return cfg, fmt.Errorf("failed to parse %q: %w", path, err)
	}
	if !yc.VM {
		return cfg, fmt.Errorf(`"vm: true" must be set in %s`, filepath.Base(path))
	}

	// Health checking defaults to on unless explicitly disabled.
	cfg.HealthChecksEnabled = true
	if yc.HealthCheck != nil && yc.HealthCheck.EnableHealthCheck != nil {
		cfg.HealthChecksEnabled = *yc.HealthCheck.EnableHealthCheck
	}
	return cfg, nil
}

func loadXML(path string) (domain.ApplicationConfiguration, error) {
	var cfg domain.ApplicationConfiguration

	// Java apps must carry a web.xml next to the platform config.
	webXML := filepath.Join(filepath.Dir(path), "web.xml")
	if _, err := os.Stat(webXML); err != nil {
		return cfg, fmt.Errorf("could not find web.xml at %q: %w", webXML, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	var xc xmlConfig
	if err := xml.Unmarshal(data, &xc); err != nil {
		return cfg, fmt.Errorf("failed to parse %q: %w", path, err)
	}
	if strings.TrimSpace(xc.VM) != "true" {
		return cfg, fmt.Errorf(`"<vm>true</vm>" must be set in %s`, filepath.Base(path))
	}

	cfg.IsJava = true
	cfg.HealthChecksEnabled = true
	if xc.HealthCheck != nil &&
		strings.TrimSpace(xc.HealthCheck.EnableHealthCheck) == "false" {
		cfg.HealthChecksEnabled = false
	}
	return cfg, nil
}
