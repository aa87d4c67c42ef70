package container

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types/registry"

	"github.com/majorcontext/jobdock/internal/log"
)

// RegistryLogin is a user supplied registry credential.
type RegistryLogin struct {
	RegistryURL string `yaml:"registry_url"`
	UserName    string `yaml:"user_name"`
	Password    string `yaml:"password"`
}

// BuiltInLogin is the platform's own registry credential. Auth is already encoded
// and is written as is.
type BuiltInLogin struct {
	URL  string `yaml:"url"`
	Auth string `yaml:"auth"`
}

type authDocument struct {
	Auths map[string]registry.AuthConfig `json:"auths"`
}

// BuildAuthDocument renders the config.json content holding every login. The built
// in login, when present, is keyed by its URL and wins over a user login for the
// same registry.
func BuildAuthDocument(logins []RegistryLogin, builtin *BuiltInLogin) ([]byte, error) {
	doc := authDocument{Auths: make(map[string]registry.AuthConfig, len(logins)+1)}
	for _, l := range logins {
		if l.RegistryURL == "" {
			return nil, invalidf("registry login for user %q has no registry url", l.UserName)
		}
		doc.Auths[l.RegistryURL] = registry.AuthConfig{
			Auth: base64.StdEncoding.EncodeToString([]byte(l.UserName + ":" + l.Password)),
		}
	}
	if builtin != nil {
		doc.Auths[builtin.URL] = registry.AuthConfig{Auth: builtin.Auth}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding registry auth: %w", err)
	}
	return data, nil
}

// credentialHome is the engine's own config directory: $DOCKER_CONFIG or ~/.docker.
func credentialHome() string {
	if dir := os.Getenv("DOCKER_CONFIG"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".docker")
}

// AuthDirPrefix names the scoped config directories WithAuth creates in the temp dir.
const AuthDirPrefix = "jobdock-docker-config-"

// WithAuth runs action against a derived Docker whose DOCKER_CONFIG points at a
// fresh directory holding only the given credentials plus the buildx state,
// contexts and cli plugins of the ambient config. The directory is removed when
// WithAuth returns, whatever the outcome.
func (d *Docker) WithAuth(logins []RegistryLogin, builtin *BuiltInLogin, action func(*Docker) error) (err error) {
	doc, err := BuildAuthDocument(logins, builtin)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", AuthDirPrefix+"*")
	if err != nil {
		return fmt.Errorf("creating docker config dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Warn("removing docker config dir", "dir", dir, "error", rmErr)
			if err == nil {
				err = fmt.Errorf("removing docker config dir: %w", rmErr)
			}
		}
	}()

	if home := credentialHome(); home != "" {
		for _, sub := range []string{"buildx", "contexts"} {
			if err := copyIfPresent(filepath.Join(home, sub), filepath.Join(dir, sub)); err != nil {
				return fmt.Errorf("copying docker %s state: %w", sub, err)
			}
		}
		plugins := filepath.Join(home, "cli-plugins")
		if _, statErr := os.Stat(plugins); statErr == nil {
			if err := os.Symlink(plugins, filepath.Join(dir, "cli-plugins")); err != nil {
				return fmt.Errorf("linking docker cli plugins: %w", err)
			}
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "config.json"), doc, 0o600); err != nil {
		return fmt.Errorf("writing docker config: %w", err)
	}
	log.Debug("using scoped docker config", "dir", dir, "registries", len(logins))
	return action(d.withEnv("DOCKER_CONFIG", dir))
}

func copyIfPresent(src, dst string) error {
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}
	return os.CopyFS(dst, os.DirFS(src))
}
