package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SecretProvider resolves configuration values by key
type SecretProvider interface {
	GetSecret(ctx context.Context, key string) (string, error)
	Name() string
	IsAvailable(ctx context.Context) bool
}

// ErrSecretNotFound means no available provider holds a value for the key
var ErrSecretNotFound = errors.New("secret not found")

// ChainProvider asks each available provider in order. The first non-empty value wins.
type ChainProvider struct {
	providers []SecretProvider
}

func NewChainProvider(providers ...SecretProvider) *ChainProvider {
	return &ChainProvider{providers: providers}
}

// Resolve returns the value for key and the name of the provider that had it. Provider
// failures do not stop the walk; they are joined into the error only when no later
// provider answers.
func (c *ChainProvider) Resolve(ctx context.Context, key string) (value, source string, err error) {
	var failures []error
	for _, p := range c.providers {
		if !p.IsAvailable(ctx) {
			continue
		}
		v, perr := p.GetSecret(ctx, key)
		switch {
		case perr != nil:
			failures = append(failures, fmt.Errorf("%s: %w", p.Name(), perr))
		case v != "":
			return v, p.Name(), nil
		}
	}
	if len(failures) > 0 {
		return "", "", fmt.Errorf("resolve %s: %w", key, errors.Join(failures...))
	}
	return "", "", fmt.Errorf("%s: %w", key, ErrSecretNotFound)
}

func (c *ChainProvider) GetSecret(ctx context.Context, key string) (string, error) {
	v, _, err := c.Resolve(ctx, key)
	return v, err
}

func (c *ChainProvider) Name() string {
	return "chain"
}

// IsAvailable reports whether any provider in the chain is available
func (c *ChainProvider) IsAvailable(ctx context.Context) bool {
	for _, p := range c.providers {
		if p.IsAvailable(ctx) {
			return true
		}
	}
	return false
}

// EnvProvider reads process environment variables
type EnvProvider struct{}

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

func (e *EnvProvider) GetSecret(_ context.Context, key string) (string, error) {
	return os.Getenv(key), nil
}

func (e *EnvProvider) Name() string {
	return "env"
}

func (e *EnvProvider) IsAvailable(context.Context) bool {
	return true
}

// FileProvider reads one file per key from a mounted secrets directory.
// WAREHOUSE_DSN is read from <dir>/warehouse-dsn.
type FileProvider struct {
	secretsPath string
}

func NewFileProvider(secretsPath string) *FileProvider {
	return &FileProvider{secretsPath: secretsPath}
}

// SecretFileName maps an environment key to its mounted file name
func SecretFileName(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "_", "-"))
}

// GetSecret returns the trimmed file contents, or "" when the file does not exist
func (f *FileProvider) GetSecret(_ context.Context, key string) (string, error) {
	if f.secretsPath == "" {
		return "", errors.New("secrets path not configured")
	}

	path := filepath.Join(f.secretsPath, SecretFileName(key))
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("read secret file %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *FileProvider) Name() string {
	return "file"
}

// IsAvailable reports whether the secrets directory exists
func (f *FileProvider) IsAvailable(context.Context) bool {
	if f.secretsPath == "" {
		return false
	}
	info, err := os.Stat(f.secretsPath)
	return err == nil && info.IsDir()
}

const serviceAccountDir = "/var/run/secrets/kubernetes.io/serviceaccount"

// K8sProvider reads secret files mounted into a pod. It is only available when a service
// account token is present.
type K8sProvider struct {
	files          *FileProvider
	namespace      string
	serviceAccount string
}

// NewK8sProvider mounts secrets from secretsPath (default /var/secrets). An empty namespace
// is read from the service account, falling back to "default".
func NewK8sProvider(secretsPath, namespace string) *K8sProvider {
	if secretsPath == "" {
		secretsPath = "/var/secrets"
	}
	if namespace == "" {
		namespace = "default"
		if ns, err := os.ReadFile(filepath.Join(serviceAccountDir, "namespace")); err == nil {
			namespace = strings.TrimSpace(string(ns))
		}
	}
	return &K8sProvider{
		files:          NewFileProvider(secretsPath),
		namespace:      namespace,
		serviceAccount: serviceAccountDir,
	}
}

func (k *K8sProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return k.files.GetSecret(ctx, key)
}

func (k *K8sProvider) Name() string {
	return "kubernetes"
}

func (k *K8sProvider) IsAvailable(ctx context.Context) bool {
	if _, err := os.Stat(filepath.Join(k.serviceAccount, "token")); err != nil {
		return false
	}
	return k.files.IsAvailable(ctx)
}

// Namespace returns the pod namespace
func (k *K8sProvider) Namespace() string {
	return k.namespace
}
