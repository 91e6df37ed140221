// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Hummingbird is the top-level configuration. Users are enumerated here at
// startup; there is no runtime registration.
type Hummingbird struct {
	// The domain part baked into every user id, room id, alias and mxc URI
	// this server hands out.
	ServerName string `yaml:"server_name"`

	// Address and port the HTTP listener binds to.
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// The fixed set of accounts that can log in.
	Users []UserAccount `yaml:"users"`
}

type UserAccount struct {
	Localpart   string `yaml:"localpart"`
	Password    string `yaml:"password"`
	DisplayName string `yaml:"display_name"`
}

func (c *Hummingbird) Defaults() {
	if c.ServerName == "" {
		c.ServerName = "localhost"
	}
	if c.BindAddress == "" {
		c.BindAddress = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8008
	}
}

func (c *Hummingbird) Verify(configErrs *ConfigErrors) {
	checkNotEmpty(configErrs, "server_name", c.ServerName)
	checkPositive(configErrs, "port", int64(c.Port))
	if len(c.Users) == 0 {
		configErrs.Add("at least one entry must be present under 'users'")
	}
	seen := map[string]struct{}{}
	for i, u := range c.Users {
		key := fmt.Sprintf("users[%d]", i)
		checkNotEmpty(configErrs, key+".localpart", u.Localpart)
		checkNotEmpty(configErrs, key+".password", u.Password)
		if strings.ContainsAny(u.Localpart, "@: \t\n") {
			configErrs.Add(fmt.Sprintf("invalid localpart for config key %q: %s", key+".localpart", u.Localpart))
		}
		if _, ok := seen[u.Localpart]; ok {
			configErrs.Add(fmt.Sprintf("duplicate localpart for config key %q: %s", key+".localpart", u.Localpart))
		}
		seen[u.Localpart] = struct{}{}
	}
}

// Load reads and validates a YAML config file.
func Load(path string) (*Hummingbird, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseAndVerify(data)
}

func parseAndVerify(data []byte) (*Hummingbird, error) {
	var c Hummingbird
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, err
	}
	c.Defaults()
	var configErrs ConfigErrors
	c.Verify(&configErrs)
	if len(configErrs) > 0 {
		return nil, configErrs
	}
	return &c, nil
}

// ConfigErrors stores problems encountered when parsing a config file.
// It implements the error interface.
type ConfigErrors []string

func (errs *ConfigErrors) Add(str string) {
	*errs = append(*errs, str)
}

func (errs ConfigErrors) Error() string {
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Sprintf("%s (and %d other problems)", errs[0], len(errs)-1)
}

func checkNotEmpty(configErrs *ConfigErrors, key, value string) {
	if value == "" {
		configErrs.Add(fmt.Sprintf("missing config key %q", key))
	}
}

func checkPositive(configErrs *ConfigErrors, key string, value int64) {
	if value <= 0 {
		configErrs.Add(fmt.Sprintf("invalid value for config key %q: %d", key, value))
	}
}
