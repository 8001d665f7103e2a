package logcfg

import (
	"os"

	logs "github.com/danmuck/smplog"
)

const envConfigPath = "S25_LOG_CONFIG"

var candidates = []string{
	"./smplog.config.toml",
	"./local/smplog.config.toml",
}

// Load returns file-backed logging configuration when available, otherwise defaults.
// $S25_LOG_CONFIG wins over the candidate paths.
func Load() logs.Config {
	cfg, _ := load(os.Getenv(envConfigPath), candidates)
	return cfg
}

// load returns the first config that parses and the path it came from; ""
// means defaults.
func load(explicit string, paths []string) (logs.Config, string) {
	if explicit != "" {
		paths = append([]string{explicit}, paths...)
	}
	for _, path := range paths {
		if cfg, err := logs.ConfigFromFile(path); err == nil {
			return cfg, path
		}
	}
	return logs.DefaultConfig(), ""
}
