package mapper

import (
	"time"

	"github.com/spf13/viper"
)

func loadConfig() {
	viper.SetConfigName("mapperrc")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.mapper")

	setupDefaults()

	viper.ReadInConfig()

	viper.SetEnvPrefix("mapper")
	viper.AutomaticEnv()
}

func setupDefaults() {
	defaultSettings := map[string]interface{}{
		"node_capacity_mb": 64.0,
		"maps_per_node":    10,
		"timeout":          time.Second, // Bound on the whole result drain
		"workers":          0,           // 0 estimates the pool size from the input
		"max_concurrency":  500,         // Maximum number of concurrent workers
		"lenient":          false,
		"delimiter":        ",",
		"output":           "",
		"progress":         false,
		"verbose":          false,
		"stat_cache_size":  128,
	}
	for key, value := range defaultSettings {
		viper.SetDefault(key, value)
	}

	aliases := map[string]string{
		"verbose": "v",
		"output":  "o",
	}
	for key, alias := range aliases {
		viper.RegisterAlias(alias, key)
	}
}
