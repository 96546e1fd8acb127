package configs

import (
	"flag"
	"os"

	"github.com/hilthontt/ghostline/internal/infrastructure/env"
)

var configFlag = flag.String("config", "", "path to config file")

// DetermineConfigPath resolves the config file from --config, GHOSTLINE_CONFIG
// or a list of well-known locations. It returns "" when none exists, in which
// case Load runs on defaults and environment alone.
func DetermineConfigPath() string {
	if !flag.Parsed() {
		flag.Parse()
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = env.GetString("GHOSTLINE_CONFIG", "")
	}
	if configPath != "" {
		return configPath
	}

	return firstExisting([]string{
		"./config.yaml",
		"./config.yml",
		"../../config.yaml", // keep for local dev
		"/etc/ghostline/config.yaml",
		"/app/config.yaml", // common in Docker
	})
}

func firstExisting(candidates []string) string {
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
