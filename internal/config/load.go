package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration, then
// resolves the API key from inference.api_key_file when api_key is unset.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	base := Default()
	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Loaded{
				Path:   resolvedPath,
				Config: base,
				Warnings: []Warning{{
					Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
				}},
				Exists: false,
			}, nil
		}
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	cfg, warnings, err := Parse(string(content), base)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	key, err := ResolveAPIKey(cfg.Inference)
	if err != nil {
		return Loaded{}, err
	}
	cfg.Inference.APIKey = key
	if key == "" {
		warnings = append(warnings, Warning{Message: "inference.api_key is empty; initialization will send an empty key"})
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
	}, nil
}

// ResolveAPIKey returns the inline api_key, or FALA_API_KEY from the dotenv file
// named by api_key_file. The process environment is never consulted.
func ResolveAPIKey(cfg InferenceConfig) (string, error) {
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		return key, nil
	}
	path := ExpandUserPath(cfg.APIKeyFile)
	if path == "" {
		return "", nil
	}

	values, err := godotenv.Read(path)
	if err != nil {
		return "", fmt.Errorf("read inference.api_key_file %q: %w", path, err)
	}
	key, ok := values[APIKeyVariable]
	if !ok {
		return "", fmt.Errorf("inference.api_key_file %q does not define %s", path, APIKeyVariable)
	}
	return strings.TrimSpace(key), nil
}
