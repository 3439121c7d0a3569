package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/subscription-engine/pkg/config"
)

func TestLoad(t *testing.T) {
	t.Run("defaults applied when env unset", func(t *testing.T) {
		type cfg struct {
			Addr  string `env:"TEST_CFG_ADDR" envDefault:":9090"`
			Limit int    `env:"TEST_CFG_LIMIT" envDefault:"50"`
		}

		var c cfg
		require.NoError(t, config.Load(&c))
		assert.Equal(t, ":9090", c.Addr)
		assert.Equal(t, 50, c.Limit)
	})

	t.Run("env overrides defaults", func(t *testing.T) {
		type cfg struct {
			Addr string `env:"TEST_CFG_OVERRIDE_ADDR" envDefault:":9090"`
		}

		t.Setenv("TEST_CFG_OVERRIDE_ADDR", ":3000")

		var c cfg
		require.NoError(t, config.Load(&c))
		assert.Equal(t, ":3000", c.Addr)
	})

	t.Run("required variable missing", func(t *testing.T) {
		type cfg struct {
			Secret string `env:"TEST_CFG_REQUIRED_SECRET,required"`
		}

		var c cfg
		err := config.Load(&c)
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		type cfg struct{}
		err := config.Load[cfg](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})
}

func TestMustLoadPanics(t *testing.T) {
	type cfg struct {
		Secret string `env:"TEST_CFG_MUST_SECRET,required"`
	}

	assert.Panics(t, func() {
		var c cfg
		config.MustLoad(&c)
	})
}
