// Package config loads the client configuration file and validates it
// against an embedded JSON schema before any field is interpreted.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/collabdesk/collabdesk/internal/api"
	"github.com/collabdesk/collabdesk/internal/docsync"
	"github.com/collabdesk/collabdesk/internal/health"
)

const schemaResource = "collabdesk-config.schema.json"

// configSchema rejects malformed files up front so a typo in a duration or
// an unknown transport fails loudly instead of silently using a default.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "gateway": {"type": "string", "minLength": 1},
    "services": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "user": {"type": "string"},
        "document": {"type": "string"},
        "version": {"type": "string"}
      }
    },
    "healthInterval": {"type": "string", "pattern": "^[0-9]"},
    "probeTimeout": {"type": "string", "pattern": "^[0-9]"},
    "quietWindow": {"type": "string", "pattern": "^[0-9]"},
    "transport": {"type": "string", "enum": ["sse", "websocket"]},
    "reconnectInitial": {"type": "string", "pattern": "^[0-9]"},
    "reconnectMax": {"type": "string", "pattern": "^[0-9]"},
    "sessionDSN": {"type": "string"},
    "mirrorFile": {"type": "string"}
  }
}`

type Config struct {
	Endpoints        api.Endpoints
	HealthInterval   time.Duration
	ProbeTimeout     time.Duration
	QuietWindow      time.Duration
	Transport        string
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	SessionDSN       string
	MirrorFile       string
}

// ReconnectPolicy returns the configured redial policy, nil when reconnect
// is off.
func (c Config) ReconnectPolicy() *docsync.ReconnectPolicy {
	if c.ReconnectInitial <= 0 {
		return nil
	}
	return &docsync.ReconnectPolicy{InitialDelay: c.ReconnectInitial, MaxDelay: c.ReconnectMax}
}

func Default() Config {
	return Config{
		Endpoints:      api.DefaultEndpoints(),
		HealthInterval: health.DefaultInterval,
		ProbeTimeout:   health.DefaultProbeTimeout,
		QuietWindow:    docsync.DefaultQuietWindow,
		Transport:      "sse",
	}
}

// fileConfig is the on-disk shape. Durations are strings in Go duration
// syntax.
type fileConfig struct {
	Gateway  string `json:"gateway"`
	Services struct {
		User     string `json:"user"`
		Document string `json:"document"`
		Version  string `json:"version"`
	} `json:"services"`
	HealthInterval   string `json:"healthInterval"`
	ProbeTimeout     string `json:"probeTimeout"`
	QuietWindow      string `json:"quietWindow"`
	Transport        string `json:"transport"`
	ReconnectInitial string `json:"reconnectInitial"`
	ReconnectMax     string `json:"reconnectMax"`
	SessionDSN       string `json:"sessionDSN"`
	MirrorFile       string `json:"mirrorFile"`
}

// Load reads path and overlays it on the defaults. A missing file is not an
// error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}
	return Parse(data)
}

// Parse validates raw config bytes against the schema and overlays them on
// the defaults.
func Parse(data []byte) (Config, error) {
	if err := validate(data); err != nil {
		return Config{}, err
	}
	var file fileConfig
	if err := json.Unmarshal(data, &file); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if file.Gateway != "" {
		cfg.Endpoints.Gateway = file.Gateway
	}
	if file.Services.User != "" {
		cfg.Endpoints.Direct[api.ServiceUser] = file.Services.User
	}
	if file.Services.Document != "" {
		cfg.Endpoints.Direct[api.ServiceDocument] = file.Services.Document
	}
	if file.Services.Version != "" {
		cfg.Endpoints.Direct[api.ServiceVersion] = file.Services.Version
	}
	if file.Transport != "" {
		cfg.Transport = file.Transport
	}
	cfg.SessionDSN = file.SessionDSN
	cfg.MirrorFile = file.MirrorFile

	durations := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{file.HealthInterval, "healthInterval", &cfg.HealthInterval},
		{file.ProbeTimeout, "probeTimeout", &cfg.ProbeTimeout},
		{file.QuietWindow, "quietWindow", &cfg.QuietWindow},
		{file.ReconnectInitial, "reconnectInitial", &cfg.ReconnectInitial},
		{file.ReconnectMax, "reconnectMax", &cfg.ReconnectMax},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("config field %s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return cfg, nil
}

func validate(data []byte) error {
	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(configSchema))
	if err != nil {
		return err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResource, schemaDoc); err != nil {
		return err
	}
	schema, err := compiler.Compile(schemaResource)
	if err != nil {
		return err
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("config is not valid JSON: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("config rejected by schema: %w", err)
	}
	return nil
}
