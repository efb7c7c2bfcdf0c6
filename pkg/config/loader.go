package config

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// loader implements the Service interface for configuration management.
type loader struct {
	koanf      *koanf.Koanf
	validator  *validator.Validate
	metadata   Metadata
	metadataMu sync.RWMutex
}

// sensitiveStringDecodeHook is a mapstructure decode hook that converts strings to SensitiveString
func sensitiveStringDecodeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(SensitiveString("")) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return SensitiveString(v), nil
	case []byte:
		return SensitiveString(v), nil
	default:
		return data, nil
	}
}

func validateDecimal(fl validator.FieldLevel) bool {
	_, err := decimal.NewFromString(fl.Field().String())
	return err == nil
}

// NewService creates a new configuration service with validation support.
func NewService() Service {
	v := validator.New()
	if err := v.RegisterValidation("decimal", validateDecimal); err != nil {
		panic(fmt.Sprintf("config: register decimal validation: %v", err))
	}
	return &loader{
		koanf:     koanf.New("."),
		validator: v,
		metadata: Metadata{
			Sources: make(map[string]SourceType),
		},
	}
}

// Load loads configuration from the specified sources with precedence order.
// Later sources win; environment variables are applied after file sources and
// before CLI flags.
func (l *loader) Load(_ context.Context, sources ...Source) (*Config, error) {
	l.reset()
	if err := l.loadDefaults(); err != nil {
		return nil, err
	}
	var cli []Source
	for _, source := range sources {
		if source == nil {
			continue
		}
		switch source.Type() {
		case SourceDefault, SourceEnv:
			continue
		case SourceCLI:
			cli = append(cli, source)
			continue
		}
		if err := l.loadSource(source); err != nil {
			return nil, err
		}
	}
	if err := l.loadEnvironment(); err != nil {
		return nil, err
	}
	for _, source := range cli {
		if err := l.loadSource(source); err != nil {
			return nil, err
		}
	}
	return l.unmarshalAndValidate()
}

func (l *loader) reset() {
	l.koanf = koanf.New(".")
	l.metadataMu.Lock()
	l.metadata.Sources = make(map[string]SourceType)
	l.metadata.LoadedAt = time.Now()
	l.metadataMu.Unlock()
}

func (l *loader) loadDefaults() error {
	if err := l.koanf.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}
	for _, key := range l.koanf.Keys() {
		l.trackSource(key, SourceDefault)
	}
	return nil
}

// loadEnvironment applies only the variables declared through env struct tags.
func (l *loader) loadEnvironment() error {
	envToPath := GenerateEnvToConfigMap()
	before := l.snapshot()
	if err := l.koanf.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key string, value string) (string, any) {
			path, ok := envToPath[key]
			if !ok {
				return "", nil
			}
			return path, value
		},
	}), nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	l.trackChanges(before, SourceEnv)
	return nil
}

func (l *loader) loadSource(source Source) error {
	data, err := source.Load()
	if err != nil {
		return fmt.Errorf("failed to load from source %s: %w", source.Type(), err)
	}
	if len(data) == 0 {
		return nil
	}
	before := l.snapshot()
	for key, value := range flattenMap("", data) {
		if err := l.koanf.Set(key, value); err != nil {
			return fmt.Errorf("failed to set key %s from source %s: %w", key, source.Type(), err)
		}
	}
	l.trackChanges(before, source.Type())
	return nil
}

func (l *loader) snapshot() map[string]any {
	keys := make(map[string]any)
	for _, key := range l.koanf.Keys() {
		keys[key] = l.koanf.Get(key)
	}
	return keys
}

func (l *loader) trackChanges(before map[string]any, source SourceType) {
	for _, key := range l.koanf.Keys() {
		valBefore, existed := before[key]
		if !existed || !reflect.DeepEqual(valBefore, l.koanf.Get(key)) {
			l.trackSource(key, source)
		}
	}
}

// flattenMap flattens a nested map into dot-notation keys
func flattenMap(prefix string, m map[string]any) map[string]any {
	result := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for fk, fv := range flattenMap(key, nested) {
				result[fk] = fv
			}
			continue
		}
		result[key] = v
	}
	return result
}

func (l *loader) unmarshalAndValidate() (*Config, error) {
	var config Config
	if err := l.koanf.UnmarshalWithConf("", &config, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &config,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				sensitiveStringDecodeHook,
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// Validate checks if the configuration meets all validation requirements.
func (l *loader) Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if err := l.validator.Struct(config); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if config.Database.Driver == "sqlite" && config.Database.Path == "" && config.Database.ConnString == "" {
		return fmt.Errorf("database.path is required for the sqlite driver")
	}
	return nil
}

// GetSource returns the source that last set the given key.
func (l *loader) GetSource(key string) SourceType {
	l.metadataMu.RLock()
	defer l.metadataMu.RUnlock()
	return l.metadata.Sources[key]
}

func (l *loader) trackSource(key string, source SourceType) {
	l.metadataMu.Lock()
	l.metadata.Sources[key] = source
	l.metadataMu.Unlock()
}
