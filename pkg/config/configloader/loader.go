// Package configloader layers defaults, config.yaml, .env and environment variables into a typed config.
package configloader

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const defaultConfigFile = "config.yaml"

type Validator interface {
	Validate() error
}

// Load builds the configuration of serviceName. Later sources win:
//
//  1. defaults
//  2. the YAML file named by <SERVICE>_CONFIG_FILE, or config.yaml
//  3. <SERVICE>_* entries of the .env file
//  4. <SERVICE>_* environment variables
//
// Env keys map to config keys by lower-casing and replacing "_" with ".".
// Missing files are skipped and unreadable ones are logged.
func Load[T Validator](serviceName string, defaults map[string]any) (T, error) {
	var cfg T
	prefix := strings.ToUpper(serviceName) + "_"
	k := koanf.New(".")

	if len(defaults) > 0 {
		if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
			return cfg, fmt.Errorf("error loading defaults: %w", err)
		}
	}

	path := os.Getenv(prefix + "CONFIG_FILE")
	if path == "" {
		path = defaultConfigFile
	}
	warnUnlessMissing(k.Load(file.Provider(path), yaml.Parser()), "YAML config file "+path)

	dotenv, err := readDotEnv(prefix)
	warnUnlessMissing(err, ".env file")
	if len(dotenv) > 0 {
		if err := k.Load(confmap.Provider(dotenv, "."), nil); err != nil {
			log.Printf("WARN: error loading .env config: %v", err)
		}
	}

	if err := k.Load(env.Provider(prefix, ".", envKey(prefix)), nil); err != nil {
		log.Printf("WARN: error loading system env vars: %v", err)
	}

	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf(&cfg)); err != nil {
		return cfg, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// unmarshalConf decodes durations from strings and splits comma separated strings
// into slices, so CHECKOUT_EVENTS_KAFKA_BROKERS=k1:9092,k2:9092 yields two brokers.
func unmarshalConf(out any) koanf.UnmarshalConf {
	return koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           out,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	}
}

// envKey turns CHECKOUT_DATABASE_URL into database.url.
func envKey(prefix string) func(string) string {
	return func(key string) string {
		key = strings.TrimPrefix(strings.ToUpper(key), prefix)
		return strings.ReplaceAll(strings.ToLower(key), "_", ".")
	}
}

// readDotEnv returns the prefixed entries of ./.env keyed like config keys.
func readDotEnv(prefix string) (map[string]any, error) {
	entries, err := godotenv.Read(".env")
	if err != nil {
		return nil, err
	}
	toKey := envKey(prefix)
	out := make(map[string]any, len(entries))
	for key, value := range entries {
		if strings.HasPrefix(strings.ToUpper(key), prefix) {
			out[toKey(key)] = value
		}
	}
	return out, nil
}

func warnUnlessMissing(err error, what string) {
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("WARN: error reading %s: %v", what, err)
	}
}
