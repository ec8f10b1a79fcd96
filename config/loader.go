package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "reportengine.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/reportengine"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger
	// startDir is where the project config search begins (default: cwd)
	startDir string
	// homeDir overrides the user home directory
	homeDir string
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// WithStartDir sets the directory the project config search starts from.
func (l *Loader) WithStartDir(dir string) *Loader {
	l.startDir = dir
	return l
}

// WithHomeDir sets the directory the user config is read from.
func (l *Loader) WithHomeDir(dir string) *Loader {
	l.homeDir = dir
	return l
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/reportengine/config.yaml)
// 3. Project config (reportengine.yaml in start or parent directories)
// 4. Explicit file (--config), when path is non-empty
func (l *Loader) Load(path string) (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfigPath != "" {
		if userConfig, err := LoadFromFile(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
			config.Merge(userConfig)
		} else if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		if projectConfig, err := LoadFromFile(projectConfigPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		} else {
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	if path != "" {
		explicit, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded explicit config", slog.String("path", path))
		config.Merge(explicit)
	}

	// The workspace defaults to the directory holding the project config,
	// then to the start directory.
	if config.Workspace.Root == "" {
		switch {
		case projectConfigPath != "":
			config.Workspace.Root = filepath.Dir(projectConfigPath)
		default:
			config.Workspace.Root = l.start()
		}
		l.logger.Debug("Using workspace root", slog.String("path", config.Workspace.Root))
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// EnsureProjectConfig writes reportengine.yaml with defaults into dir if it doesn't exist
func (l *Loader) EnsureProjectConfig(dir string) (string, error) {
	configPath := filepath.Join(dir, ProjectConfigFile)

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	}

	if err := DefaultConfig().SaveToFile(configPath); err != nil {
		return "", err
	}

	l.logger.Info("Created default project config", slog.String("path", configPath))
	return configPath, nil
}

func (l *Loader) start() string {
	if l.startDir != "" {
		return l.startDir
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home := l.homeDir
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return ""
		}
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for reportengine.yaml in the start and parent directories
func (l *Loader) findProjectConfig() string {
	dir, err := filepath.Abs(l.start())
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return ""
}
