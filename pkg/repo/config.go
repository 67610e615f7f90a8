package repo

import (
	"fmt"
	"strings"

	"github.com/nyxforge/gitcore/pkg/config"
)

func (r *Repo) configPath() string {
	return r.GitDir + "/config"
}

// ReadConfig reads .git/config. A missing file yields an empty config.
func (r *Repo) ReadConfig() (*config.Config, error) {
	cfg, err := config.ReadFile(r.configPath())
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return cfg, nil
}

// WriteConfig atomically writes .git/config.
func (r *Repo) WriteConfig(cfg *config.Config) error {
	if err := config.WriteFile(r.configPath(), cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SetRemote stores/updates a named remote's URL under [remote "name"].
func (r *Repo) SetRemote(name, remoteURL string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("set remote: remote name is required")
	}
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return fmt.Errorf("set remote: remote URL is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	cfg.Set("remote", name, "url", remoteURL)
	return r.WriteConfig(cfg)
}

// RemoveRemote deletes a named remote's section. Returns an error if the
// remote is not configured.
func (r *Repo) RemoveRemote(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("remove remote: remote name is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	if !cfg.Unset("remote", name, "url") {
		return fmt.Errorf("remove remote: remote %q is not configured", name)
	}
	return r.WriteConfig(cfg)
}

// RemoteURL returns the configured URL for the given remote name.
func (r *Repo) RemoteURL(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("remote name is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return "", err
	}
	url, ok := cfg.Get("remote", name, "url")
	if !ok || strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("remote %q is not configured", name)
	}
	return url, nil
}

// Remotes lists configured remote names, sorted alphabetically.
func (r *Repo) Remotes() ([]string, error) {
	cfg, err := r.ReadConfig()
	if err != nil {
		return nil, err
	}
	return cfg.Subsections("remote"), nil
}
