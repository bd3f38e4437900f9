package config

const (
	defaultConfigPath        = "~/.config/sceneflow/config.toml"
	defaultWorkingDir        = "~/.local/share/sceneflow/scenes"
	defaultDataDir           = "~/.local/share/sceneflow/data"
	defaultLogDir            = "~/.local/share/sceneflow/logs"
	defaultCatalogPath       = "~/.local/share/sceneflow/data/catalog.db"
	defaultLoginURL          = "https://ers.cr.usgs.gov/login/"
	defaultDownloadURL       = "https://earthexplorer.usgs.gov/download/{repository}/{scene_id}/STANDARD/EE"
	defaultLoginInterval     = 1800
	defaultLoginRetries      = 3
	defaultRequestsPerSecond = 2
	defaultChunkSize         = 32 * 1024
	defaultWorkflowName      = "example"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkingDir: defaultWorkingDir,
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
		},
		Remote: Remote{
			Online:      true,
			LoginURL:    defaultLoginURL,
			DownloadURL: defaultDownloadURL,
			Repositories: map[string][]string{
				"OLI_TIRS": {"4923", "12864"},
				"ETM+":     {"3373", "12267"},
				"LT5":      {"3119", "12266"},
			},
			LoginInterval:     defaultLoginInterval,
			LoginRetries:      defaultLoginRetries,
			RequestsPerSecond: defaultRequestsPerSecond,
			ChunkSize:         defaultChunkSize,
		},
		Catalog: Catalog{
			Path: defaultCatalogPath,
		},
		Workflow: Workflow{
			Name:            defaultWorkflowName,
			Cleanup:         true,
			CleanupPatterns: []string{"*.sgrd", "*.xml", "*.mgrd", "*.sdat", "*.prj", "*.pgw", "Bands/*_B[0-9]*.TIF"},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
