// config.go: settings struct and functions to load and save the shroud-go configuration.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig contains settings for a rotated log file.
type LogConfig struct {
	Enabled    bool   // true to enable file logging
	Path       string // path to log file
	MaxSize    int    // maximum log file size in megabytes before rotation
	MaxBackups int    // number of rotated log files to keep
	MaxAge     int    // days to keep rotated log files
}

// MainSettings contains general application settings.
type MainSettings struct {
	Name  string    // name of this node
	Debug bool      // enable debug log level
	Log   LogConfig // main log file settings
}

// ModelFactConfig describes one declared input or output tensor of a
// statically configured model.
type ModelFactConfig struct {
	DatumType *string `mapstructure:"datumtype"` // optional datum type string, parsed at load time
	Dims      []int   `mapstructure:"dims"`      // tensor dimensions
	Index     *int    `mapstructure:"index"`     // optional tensor index
	IndexName *string `mapstructure:"indexname"` // optional tensor name
}

// LoadModelConfig describes a model preloaded from the filesystem at startup.
type LoadModelConfig struct {
	Path        string            `mapstructure:"path"`        // filesystem path of the model file
	ModelID     string            `mapstructure:"modelid"`     // identity the model is stored under
	NoOptim     bool              `mapstructure:"nooptim"`     // true to disable graph optimization
	InputFacts  []ModelFactConfig `mapstructure:"inputfacts"`  // declared input tensors
	OutputFacts []ModelFactConfig `mapstructure:"outputfacts"` // declared output tensors
}

// StoreSettings contains settings for the model store.
type StoreSettings struct {
	ModelsPath    string            // storage root for sealed model files
	MaxModelStore int               // maximum number of stored models, 0 for unbounded
	LoadModels    []LoadModelConfig `mapstructure:"loadmodels"` // models preloaded from static configuration
}

// SealingSettings contains settings for the sealing collaborator.
type SealingSettings struct {
	KeyPath string // path to the sealing key file, generated on first use if absent
}

// ModelSettings contains settings for the inference runtime.
type ModelSettings struct {
	Threads int // interpreter threads per loaded model, 0 for runtime default
}

// WebServerSettings contains settings for the HTTP operation surface.
type WebServerSettings struct {
	Enabled bool   // true to enable the HTTP API
	Host    string // bind address
	Port    string // bind port
}

// Settings contains all configuration settings for the application.
type Settings struct {
	Main      MainSettings
	Store     StoreSettings
	Sealing   SealingSettings
	Model     ModelSettings
	WebServer WebServerSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	// Initialize viper and read config
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	// Unmarshal the config into settings
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	// Validate settings
	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	// Read configuration file
	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	// Create directories for config file
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	// Write default config file
	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetDefaultConfigPaths returns the default configuration paths for the
// current operating system.
func GetDefaultConfigPaths() ([]string, error) {
	var configPaths []string

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user directory: %w", err)
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user config directory: %w", err)
	}

	configPaths = []string{
		filepath.Join(configDir, "shroud-go"),
		filepath.Join(homeDir, ".config", "shroud-go"),
		".",
	}

	return configPaths, nil
}
