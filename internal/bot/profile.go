// Package bot implements the practice opponent: when a bot manifest is
// configured, a player that stays logged in for the server's lifetime,
// driven by a Lua-scripted strategy, reachable through the ordinary
// invitation/session machinery like any other client.
package bot

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile names one bot personality: its login name, a difficulty label,
// and the script that computes its moves. The difficulty label is read from
// the manifest only; the script is not given it.
type Profile struct {
	Name       string `yaml:"name"`
	Difficulty string `yaml:"difficulty"`
	Script     string `yaml:"script"`
}

type manifest struct {
	Bots []Profile `yaml:"bots"`
}

// LoadProfiles reads the bot manifest at path. A missing file yields no
// profiles and no error: the practice bot is simply absent.
func LoadProfiles(path string) ([]Profile, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read bot manifest %s: %w", path, err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse bot manifest %s: %w", path, err)
	}
	return m.Bots, nil
}
