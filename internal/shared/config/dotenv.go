package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// mergeEnvFiles loads KEY=VALUE pairs from the given files into the process
// environment so AutomaticEnv can see them. Missing files are skipped and
// variables already set in the environment win.
func mergeEnvFiles(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		ev := viper.New()
		ev.SetConfigFile(path)
		ev.SetConfigType("env")
		if err := ev.ReadInConfig(); err != nil {
			return eris.Wrapf(err, "config: read env file %s", path)
		}
		for _, key := range ev.AllKeys() {
			envKey := strings.ToUpper(key)
			if _, exists := os.LookupEnv(envKey); exists {
				continue
			}
			if err := os.Setenv(envKey, ev.GetString(key)); err != nil {
				return eris.Wrapf(err, "config: set %s", envKey)
			}
		}
	}
	return nil
}
