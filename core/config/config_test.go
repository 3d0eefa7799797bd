package config

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v2"
)

func TestBuiltinConfig(t *testing.T) {
	rawConfig := make(map[string]interface{})
	assert.Nil(t, yaml.Unmarshal(defaultConfigData, &rawConfig))

	knownFields := make(map[string]bool)
	rt := reflect.TypeOf(Configuration{})
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		assert.NotEmpty(t, jsonTag)
		jsonField := strings.Split(jsonTag, ",")[0]
		knownFields[jsonField] = true

		if _, ok := rawConfig[jsonField]; !ok {
			assert.False(t, true, "default config missing field: %q", jsonField)
		}
	}

	for k := range rawConfig {
		_, ok := knownFields[k]
		assert.True(t, ok, "default config contains invalid field: %q", k)
	}
}

func TestDefaultConfig(t *testing.T) {
	// Will panic() on load failure because it should never happen at runtime.
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Nil(t, cfg.Validate())
	assert.Equal(t, "", cfg.HistoryPath(), "in-memory config has no history file")
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		mutate  func(*Configuration)
		wantErr string
	}{
		"default": {
			mutate: func(*Configuration) {},
		},
		"bad-color": {
			mutate:  func(c *Configuration) { c.Color = "rainbow" },
			wantErr: "color",
		},
		"bad-job-control": {
			mutate:  func(c *Configuration) { c.JobControl = "maybe" },
			wantErr: "job_control",
		},
		"negative-history": {
			mutate:  func(c *Configuration) { c.HistoryLimit = -1 },
			wantErr: "history_limit",
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.Nil(t, err)
				return
			}
			if assert.NotNil(t, err) {
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestHistoryPath(t *testing.T) {
	cfg := &Configuration{configurationDir: "/home/user/.jobsh"}

	cfg.HistoryFile = "history"
	assert.Equal(t, "/home/user/.jobsh/history", cfg.HistoryPath())

	cfg.HistoryFile = "/tmp/history"
	assert.Equal(t, "/tmp/history", cfg.HistoryPath())

	cfg.HistoryFile = ""
	assert.Equal(t, "", cfg.HistoryPath())
}
