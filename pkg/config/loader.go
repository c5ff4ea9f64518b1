// Package config loads env-tagged structs from the process environment,
// reading a local .env file first when one exists.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrParse     = errors.New("config: cannot parse environment")
	ErrNilTarget = errors.New("config: nil target")
)

var (
	dotenvOnce sync.Once

	mu     sync.Mutex
	loaded = map[reflect.Type]any{}
)

// Load fills v from environment variables according to its `env` tags.
// Every config type is parsed once per process; later calls receive a copy
// of the first result.
//
//	var cfg gateway.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilTarget
	}
	dotenvOnce.Do(func() {
		// A missing .env file is the normal case outside local development.
		_ = godotenv.Load()
	})

	key := reflect.TypeFor[T]()

	mu.Lock()
	defer mu.Unlock()

	if cached, ok := loaded[key]; ok {
		*v = cached.(T)
		return nil
	}

	var parsed T
	if err := env.Parse(&parsed); err != nil {
		return errors.Join(ErrParse, err)
	}
	loaded[key] = parsed
	*v = parsed
	return nil
}

// MustLoad is Load for startup code: it panics when parsing fails.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: %T: %v", *v, err))
	}
}
