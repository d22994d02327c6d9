// Package localconfig loads the process configuration from config files, a
// .env file and PAYSYNC_ environment variables.
package localconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/paysync/paysync/cmd/internal/envflags"
	"github.com/paysync/paysync/pkg/config"
	"github.com/paysync/paysync/pkg/logger"
	"github.com/urfave/cli/v3"
)

const (
	EnvPrefix = "PAYSYNC_"
	// EnvNesting separates nested keys in environment variables, eg.
	// PAYSYNC_SCHEDULER__PRODUCER__BATCH_SIZE.
	EnvNesting = "__"
)

var configNames = []string{"paysync.yaml", "paysync.yml", "paysync.json"}

// listKeys hold comma separated values when set from the environment.
var listKeys = map[string]bool{
	"redis.addrs": true,
}

// Load builds the configuration in priority order, lowest first:
// 1. config.Default()
// 2. Config file, from --config, PAYSYNC_CONFIG or the working directory
// 3. Environment variables with the PAYSYNC_ prefix, after loading .env
//
// The result is validated.
func Load(ctx context.Context, cmd *cli.Command) (*config.Config, error) {
	return load(ctx, envflags.GetEnvOrFlag(cmd, "config", EnvPrefix+"CONFIG"))
}

func load(ctx context.Context, path string) (*config.Config, error) {
	l := logger.StdlibLogger(ctx)
	k := koanf.New(".")

	if path == "" {
		path = find()
	}
	if path != "" {
		if err := loadFile(k, path); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
		l.Info("using config", "file", path)
	}

	// A missing .env is fine; variables already set take precedence.
	_ = godotenv.Load()

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	c := config.Default()
	if err := k.UnmarshalWithConf("", c, koanf.UnmarshalConf{
		Tag: "koanf",
		// Lists and maps which are set replace their defaults rather than
		// merging into them.
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			ZeroFields:       true,
			WeaklyTypedInput: true,
			TagName:          "koanf",
			Result:           c,
		},
	}); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// envKey maps PAYSYNC_SCHEDULER__PRODUCER__BATCH_SIZE to
// scheduler.producer.batch_size.
func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return "", nil
	}
	key = strings.ReplaceAll(key, strings.ToLower(EnvNesting), ".")
	if listKeys[key] {
		return key, strings.Split(value, ",")
	}
	return key, value
}

func find() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for _, name := range configNames {
		p := filepath.Join(cwd, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func loadFile(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch filepath.Ext(path) {
	case ".json":
		parser = json.Parser()
	default:
		parser = yaml.Parser()
	}
	return k.Load(file.Provider(path), parser)
}
