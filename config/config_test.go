// Copyright 2025 Nonvolatile Inc. d/b/a Confident Security
//
// Licensed under the Functional Source License, Version 1.1,
// ALv2 Future License, the terms and conditions of which are
// set forth in the "LICENSE" file included in the root directory
// of this code repository (the "License"); you may not use this
// file except in compliance with the License. You may obtain
// a copy of the License at
//
// https://fsl.software/FSL-1.1-ALv2.template.md
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Interval time.Duration `yaml:"interval"`
	Name     string        `yaml:"name"`
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interval: 5s\n"), 0644))

	cfg := testConfig{Interval: time.Second, Name: "default"}
	require.NoError(t, Load(&cfg, path))

	assert.Equal(t, 5*time.Second, cfg.Interval)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, "default", cfg.Name)
}

func TestLoadEmptyPathIsNoop(t *testing.T) {
	cfg := testConfig{Name: "default"}
	require.NoError(t, Load(&cfg, ""))
	assert.Equal(t, "default", cfg.Name)
}

func TestLoadEmptyFileIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	cfg := testConfig{Name: "default"}
	require.NoError(t, Load(&cfg, path))
	assert.Equal(t, "default", cfg.Name)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("intervall: 5s\n"), 0644))

	cfg := testConfig{}
	assert.Error(t, Load(&cfg, path))
}

func TestLoadMissingFile(t *testing.T) {
	cfg := testConfig{}
	assert.Error(t, Load(&cfg, filepath.Join(t.TempDir(), "nope.yaml")))
}
