package plugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockConfig is a mock configuration struct for testing structured config.
type MockConfig struct {
	Address string `mapstructure:"address"`
	Tag     string `mapstructure:"tag"`
}

// MockFactory is a mock implementation of the Factory interface for testing.
type MockFactory struct {
	PType    Type
	PName    string
	SetupErr error

	SetupCount   int
	DestroyCount int
	LastConfig   *MockConfig
}

func (m *MockFactory) Type() Type   { return m.PType }
func (m *MockFactory) Name() string { return m.PName }
func (m *MockFactory) ConfigType() any {
	return &MockConfig{}
}
func (m *MockFactory) Setup(config any) (Plugin, error) {
	if m.SetupErr != nil {
		return nil, m.SetupErr
	}
	m.SetupCount++
	m.LastConfig = config.(*MockConfig)
	return &MockPlugin{FName: m.PName}, nil
}
func (m *MockFactory) Destroy(p Plugin) {
	m.DestroyCount++
}

// MockPlugin is a mock plugin instance for testing.
type MockPlugin struct {
	FName string
}

func (mp *MockPlugin) FactoryName() string {
	return mp.FName
}

func TestManager(t *testing.T) {
	factory := &MockFactory{PType: Reporter, PName: "prometheus"}

	t.Run("RegisterFactory", func(t *testing.T) {
		manager := NewManager()
		manager.RegisterFactory(factory)
		assert.NotNil(t, manager.factories[Reporter])
		assert.Equal(t, factory, manager.factories[Reporter]["prometheus"])
	})

	t.Run("SetupAndGetPlugins", func(t *testing.T) {
		manager := NewManager()
		prom := &MockFactory{PType: Reporter, PName: "prometheus"}
		stream := &MockFactory{PType: Reporter, PName: "stream"}
		manager.RegisterFactory(prom)
		manager.RegisterFactory(stream)

		pluginConf := map[string]any{
			"reporter": map[string]any{
				"prometheus": map[string]any{
					"address": "127.0.0.1:9100",
					"tag":     "default",
				},
				"stream": map[string]any{
					"address": "/tmp/metrics.bin",
				},
			},
		}

		require.NoError(t, manager.SetupPlugins(pluginConf))
		assert.Equal(t, "127.0.0.1:9100", prom.LastConfig.Address)

		p, err := manager.GetPlugin(Reporter, "default")
		require.NoError(t, err)
		assert.IsType(t, &MockPlugin{}, p)

		dp, err := manager.GetDefaultPlugin(Reporter)
		require.NoError(t, err)
		assert.Equal(t, p, dp)

		sp, err := manager.GetPlugin(Reporter, "stream")
		require.NoError(t, err)
		assert.Equal(t, "stream", sp.FactoryName())

		all := manager.Plugins(Reporter)
		require.Len(t, all, 2)
		assert.Equal(t, "prometheus", all[0].FactoryName(), "ordered by key: default < stream")
		assert.Equal(t, "stream", all[1].FactoryName())

		manager.DestroyPlugins()
		assert.Equal(t, 1, prom.DestroyCount)
		assert.Equal(t, 1, stream.DestroyCount)
		assert.Empty(t, manager.Plugins(Reporter))
	})

	t.Run("UnknownTypeIsIgnored", func(t *testing.T) {
		manager := NewManager()
		err := manager.SetupPlugins(map[string]any{"tracer": map[string]any{"zipkin": map[string]any{}}})
		assert.NoError(t, err)

		_, err = manager.GetDefaultPlugin("tracer")
		assert.ErrorIs(t, err, ErrPluginNotFound)
	})

	t.Run("ErrorOnDuplicateTag", func(t *testing.T) {
		manager := NewManager()
		first := &MockFactory{PType: Reporter, PName: "reporter1"}
		second := &MockFactory{PType: Reporter, PName: "reporter2"}
		manager.RegisterFactory(first)
		manager.RegisterFactory(second)

		pluginConf := map[string]any{
			"reporter": map[string]any{
				"reporter1": map[string]any{"tag": "default"},
				"reporter2": map[string]any{"tag": "default"},
			},
		}

		err := manager.SetupPlugins(pluginConf)
		assert.ErrorIs(t, err, ErrDuplicatePlugin)
		assert.Equal(t, 1, first.SetupCount+second.SetupCount, "the duplicate is rejected before setup")
	})

	t.Run("ErrorOnMissingFactory", func(t *testing.T) {
		manager := NewManager()
		manager.RegisterFactory(&MockFactory{PType: Reporter, PName: "prometheus"})

		pluginConf := map[string]any{
			"reporter": map[string]any{
				"nonexistent": map[string]any{},
			},
		}
		err := manager.SetupPlugins(pluginConf)
		assert.ErrorIs(t, err, ErrPluginNotFound)
	})

	t.Run("ErrorOnSetup", func(t *testing.T) {
		manager := NewManager()
		manager.RegisterFactory(&MockFactory{PType: Reporter, PName: "broken", SetupErr: errors.New("listen failed")})

		err := manager.SetupPlugins(map[string]any{"reporter": map[string]any{"broken": map[string]any{}}})
		assert.ErrorIs(t, err, ErrFactorySetup)
		assert.ErrorContains(t, err, "listen failed")
	})

	t.Run("ConfigDecoding", func(t *testing.T) {
		t.Run("InvalidType", func(t *testing.T) {
			manager := NewManager()
			manager.RegisterFactory(&MockFactory{PType: Reporter, PName: "prometheus"})

			pluginConf := map[string]any{
				"reporter": map[string]any{
					"prometheus": map[string]any{
						"address": 123,
					},
				},
			}
			err := manager.SetupPlugins(pluginConf)
			assert.ErrorIs(t, err, ErrConfigDecode)
		})

		t.Run("InvalidFormat", func(t *testing.T) {
			manager := NewManager()
			manager.RegisterFactory(&MockFactory{PType: Reporter, PName: "prometheus"})

			err := manager.SetupPlugins(map[string]any{"reporter": "not-a-map"})
			assert.ErrorIs(t, err, ErrInvalidConfigFormat)

			err = manager.SetupPlugins(map[string]any{"reporter": map[string]any{"prometheus": "not-a-map"}})
			assert.ErrorIs(t, err, ErrInvalidConfigFormat)
		})
	})
}
