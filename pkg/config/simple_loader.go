package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
)

// Load reads a YAML file into config, substituting ${VAR_NAME} references
// with environment variables first. Fields absent from the file keep their
// current values, so load into NewRunConfig() to get defaults.
func Load(filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller
	if err != nil {
		if os.IsNotExist(err) {
			return crystalerrors.Wrap(err, crystalerrors.ErrorTypeNotFound, "config file not found").
				WithDetail("path", filePath)
		}
		return crystalerrors.Wrap(err, crystalerrors.ErrorTypeFile, "failed to read config file").
			WithDetail("path", filePath)
	}

	content := substituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return crystalerrors.Wrap(err, crystalerrors.ErrorTypeConfig, "failed to parse YAML").
			WithDetail("path", filePath)
	}

	return nil
}

// LoadRunConfig loads path over the defaults and validates the result.
func LoadRunConfig(path string) (*RunConfig, error) {
	cfg := NewRunConfig()
	if err := Load(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to a YAML file
func Save(filePath string, config interface{}) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return crystalerrors.Wrap(err, crystalerrors.ErrorTypeInternal, "failed to marshal YAML")
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil { //nolint:gosec
		return crystalerrors.Wrap(err, crystalerrors.ErrorTypeFile, "failed to write config file").
			WithDetail("path", filePath)
	}

	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
