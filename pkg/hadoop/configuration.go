// Package hadoop loads Hadoop client configuration and applies HDFS ACL
// entries through the WebHDFS REST API.
package hadoop

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Well-known configuration keys.
const (
	KeyDefaultFS            = "fs.defaultFS"
	KeyNamenodeHTTPAddress  = "dfs.namenode.http-address"
	KeyNamenodeHTTPSAddress = "dfs.namenode.https-address"
	KeyHTTPPolicy           = "dfs.http.policy"
	KeyUserName             = "hadoop.user.name"
)

// SiteFiles are loaded from a configuration directory, in order.
var SiteFiles = []string{"core-site.xml", "hdfs-site.xml"}

// Configuration is a set of Hadoop properties. Resources added later
// override earlier ones. A nil *Configuration behaves as an empty one.
type Configuration struct {
	props map[string]string
}

type xmlConfiguration struct {
	Properties []struct {
		Name  string `xml:"name"`
		Value string `xml:"value"`
	} `xml:"property"`
}

// NewConfiguration returns an empty configuration.
func NewConfiguration() *Configuration {
	return &Configuration{props: make(map[string]string)}
}

// LoadConfiguration reads the given *-site.xml files in order.
func LoadConfiguration(paths ...string) (*Configuration, error) {
	conf := NewConfiguration()
	for _, p := range paths {
		if err := conf.AddFile(p); err != nil {
			return nil, err
		}
	}
	return conf, nil
}

// LoadConfigurationDir reads every file of SiteFiles present in dir.
// Missing files are skipped.
func LoadConfigurationDir(dir string) (*Configuration, error) {
	conf := NewConfiguration()
	for _, name := range SiteFiles {
		err := conf.AddFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return conf, nil
}

// AddFile reads one *-site.xml file.
func (c *Configuration) AddFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open hadoop configuration: %w", err)
	}
	defer f.Close()

	if err := c.AddResource(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// AddResource parses a <configuration> document and merges its properties.
func (c *Configuration) AddResource(r io.Reader) error {
	var doc xmlConfiguration
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("parse hadoop configuration: %w", err)
	}
	for _, p := range doc.Properties {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		c.Set(name, strings.TrimSpace(p.Value))
	}
	return nil
}

// Get returns the value of key, or "" if unset.
func (c *Configuration) Get(key string) string {
	if c == nil {
		return ""
	}
	return c.props[key]
}

// GetDefault returns the value of key, or def if unset or empty.
func (c *Configuration) GetDefault(key, def string) string {
	if v := c.Get(key); v != "" {
		return v
	}
	return def
}

// Set stores a property.
func (c *Configuration) Set(key, value string) {
	if c.props == nil {
		c.props = make(map[string]string)
	}
	c.props[key] = value
}

// Keys returns the property names in sorted order.
func (c *Configuration) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.props))
	for k := range c.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
