package config

const (
	defaultDataDir              = "~/.local/share/folderexport"
	defaultExportDir            = "~/.local/share/folderexport/exports"
	defaultLogDir               = "~/.local/share/folderexport/logs"
	defaultCatalogPath          = "~/.config/folderexport/catalog.yaml"
	defaultStoreBackend         = "sqlite"
	defaultAPIBind              = "127.0.0.1:7489"
	defaultListLimit            = 20
	defaultWorkers              = 2
	defaultQueueSize            = 64
	defaultQueuePollInterval    = 5
	defaultCleanupInterval      = 3600
	defaultProgressEvery        = 10
	defaultRetentionWindowHours = 24
	defaultMinFreeMiB           = 512
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultNtfyRequestTimeout   = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			ExportDir: defaultExportDir,
			LogDir:    defaultLogDir,
		},
		Store: Store{
			Backend: defaultStoreBackend,
		},
		Catalog: Catalog{
			Path:       defaultCatalogPath,
			DetectMIME: true,
		},
		API: API{
			Bind:      defaultAPIBind,
			ListLimit: defaultListLimit,
		},
		Workflow: Workflow{
			Workers:           defaultWorkers,
			QueueSize:         defaultQueueSize,
			QueuePollInterval: defaultQueuePollInterval,
			CleanupInterval:   defaultCleanupInterval,
			ProgressEvery:     defaultProgressEvery,
		},
		Retention: Retention{
			WindowHours: defaultRetentionWindowHours,
		},
		Preflight: Preflight{
			MinFreeMiB: defaultMinFreeMiB,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			OnSuccess:      true,
			OnFailure:      true,
		},
	}
}
