package config

const (
	defaultDownloadDir      = "~/.local/share/magpie/downloads"
	defaultStateDir         = "~/.local/share/magpie/state"
	defaultLogDir           = "~/.local/share/magpie/logs"
	defaultCredentialsPath  = "~/.config/magpie/credentials.json"
	defaultAPIBind          = "127.0.0.1:7733"
	defaultMaxConcurrent    = 4
	defaultIdleTimeout      = 120
	defaultRequestTimeout   = 60
	defaultRetentionSeconds = 300
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Downloads: Downloads{
			MaxConcurrent:    defaultMaxConcurrent,
			IdleTimeout:      defaultIdleTimeout,
			RequestTimeout:   defaultRequestTimeout,
			RetentionSeconds: defaultRetentionSeconds,
			DownloadFiles:    true,
		},
		Credentials: Credentials{
			Path: defaultCredentialsPath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
