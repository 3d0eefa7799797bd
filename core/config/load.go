package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// Load loads the configuration from the directory.
func Load(path string) (*Configuration, error) {
	// If given the path to a config.yaml file, move back up a level.
	if filepath.Base(path) == ConfigurationName {
		path = filepath.Dir(path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	configFs := afero.NewBasePathFs(afero.NewOsFs(), absPath)
	configContents, err := afero.ReadFile(configFs, ConfigurationName)
	if err != nil {
		return nil, err
	}

	// Fields missing from the file keep their default values.
	out := *defaultConfig()
	if err := yaml.UnmarshalStrict(configContents, &out); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ConfigurationName, err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ConfigurationName, err)
	}

	out.configFs = configFs
	out.configurationDir = absPath
	return &out, nil
}

// Initialize writes the default configuration into dir. An existing
// configuration is left untouched.
func Initialize(dir string, logger *log.Logger) error {
	configFs := afero.NewBasePathFs(afero.NewOsFs(), dir)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	exists, err := afero.Exists(configFs, ConfigurationName)
	if err != nil {
		return err
	}
	if exists {
		logger.Printf("%s already exists in %s, skipping\n", ConfigurationName, dir)
		return nil
	}

	logger.Printf("Writing %s to %s\n", ConfigurationName, dir)
	return afero.WriteFile(configFs, ConfigurationName, defaultConfigData, 0600)
}
