// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ObjectGetter fetches a whole object from blob storage.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

type loadConfig struct {
	objects ObjectGetter
}

type LoadOption func(*loadConfig)

// WithObjectGetter enables s3:// sources.
func WithObjectGetter(g ObjectGetter) LoadOption {
	return func(c *loadConfig) {
		c.objects = g
	}
}

// Load reads, parses and validates a registry. source is a file path,
// "env:VAR" (YAML or JSON held in an environment variable) or
// "s3://bucket/key". The format follows the file extension.
func Load(ctx context.Context, source string, opts ...LoadOption) (*Registry, error) {
	var cfg loadConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	data, format, err := fetch(ctx, source, cfg)
	if err != nil {
		return nil, err
	}
	r, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", source, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("registry %s: %w", source, err)
	}
	return r, nil
}

func fetch(ctx context.Context, source string, cfg loadConfig) ([]byte, Format, error) {
	switch {
	case source == "":
		return nil, "", errors.New("no registry source configured")

	case strings.HasPrefix(source, "env:"):
		name := strings.TrimPrefix(source, "env:")
		val, ok := os.LookupEnv(name)
		if !ok {
			return nil, "", fmt.Errorf("registry environment variable %s is not set", name)
		}
		return []byte(val), FormatYAML, nil

	case strings.HasPrefix(source, "s3://"):
		if cfg.objects == nil {
			return nil, "", fmt.Errorf("registry %s: no object store client", source)
		}
		bucket, key, ok := strings.Cut(strings.TrimPrefix(source, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, "", fmt.Errorf("registry %s: want s3://bucket/key", source)
		}
		format, err := formatFor(key)
		if err != nil {
			return nil, "", err
		}
		data, err := cfg.objects.GetObject(ctx, bucket, key)
		if err != nil {
			return nil, "", fmt.Errorf("fetch registry: %w", err)
		}
		return data, format, nil
	}

	format, err := formatFor(source)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, "", fmt.Errorf("read registry: %w", err)
	}
	return data, format, nil
}

func formatFor(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("registry %s: unknown format, want .yaml, .toml or .json", name)
}
