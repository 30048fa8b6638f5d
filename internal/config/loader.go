package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	// EmbeddedRootConfigurationReference identifies the embedded fallback configuration source.
	EmbeddedRootConfigurationReference = "embedded default configuration"

	configurationName           = "config"
	homeConfigurationDirectory  = ".anonwiz"
	homeEnvironmentVariableName = "HOME"
	explicitReadErrorFormat     = "read explicit configuration %s: %w"
	searchErrorFormat           = "search configuration: %w"
	searchedReadErrorFormat     = "read configuration %s: %w"
	workingDirectoryErrorFormat = "determine working directory: %w"
)

//go:embed default_root_configuration.yaml
var embeddedRootConfigurationBytes []byte

// RootConfigurationSource holds the raw configuration data and its origin.
type RootConfigurationSource struct {
	Reference string
	Content   []byte
}

// RootConfigurationLoader resolves the configuration file. An explicit path
// wins; otherwise viper searches the working directory and then
// $HOME/.anonwiz for config.yaml (or any other viper-supported extension).
// The embedded defaults are used when nothing is found.
type RootConfigurationLoader struct {
	filesystem  afero.Fs
	searchPaths []string
}

// NewRootConfigurationLoader searches workingDirectory and homeDirectory on the OS filesystem.
func NewRootConfigurationLoader(workingDirectory string, homeDirectory string) RootConfigurationLoader {
	return NewRootConfigurationLoaderOnFs(afero.NewOsFs(), workingDirectory, homeDirectory)
}

// NewRootConfigurationLoaderOnFs searches filesystem instead of the OS. Empty
// directories are skipped.
func NewRootConfigurationLoaderOnFs(filesystem afero.Fs, workingDirectory string, homeDirectory string) RootConfigurationLoader {
	var searchPaths []string
	if workingDirectory != "" {
		searchPaths = append(searchPaths, workingDirectory)
	}
	if homeDirectory != "" {
		searchPaths = append(searchPaths, filepath.Join(homeDirectory, homeConfigurationDirectory))
	}
	return RootConfigurationLoader{filesystem: filesystem, searchPaths: searchPaths}
}

// NewDefaultRootConfigurationLoader builds a loader using the process working directory and HOME.
func NewDefaultRootConfigurationLoader() (RootConfigurationLoader, error) {
	workingDirectory, err := os.Getwd()
	if err != nil {
		return RootConfigurationLoader{}, fmt.Errorf(workingDirectoryErrorFormat, err)
	}
	return NewRootConfigurationLoader(workingDirectory, os.Getenv(homeEnvironmentVariableName)), nil
}

// Load resolves the configuration source. A missing or unreadable explicit
// path falls through to the search; any other read error is returned.
func (loader RootConfigurationLoader) Load(explicitPath string) (RootConfigurationSource, error) {
	if explicitPath != "" {
		content, err := afero.ReadFile(loader.filesystem, explicitPath)
		switch {
		case err == nil:
			return RootConfigurationSource{Reference: explicitPath, Content: content}, nil
		case !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrPermission):
			return RootConfigurationSource{}, fmt.Errorf(explicitReadErrorFormat, explicitPath, err)
		}
	}

	finder := viper.New()
	finder.SetFs(loader.filesystem)
	finder.SetConfigName(configurationName)
	finder.SetConfigType(configurationType)
	for _, searchPath := range loader.searchPaths {
		finder.AddConfigPath(searchPath)
	}
	if err := finder.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return RootConfigurationSource{Reference: EmbeddedRootConfigurationReference, Content: embeddedRootConfigurationBytes}, nil
		}
		return RootConfigurationSource{}, fmt.Errorf(searchErrorFormat, err)
	}

	path := finder.ConfigFileUsed()
	content, err := afero.ReadFile(loader.filesystem, path)
	if err != nil {
		return RootConfigurationSource{}, fmt.Errorf(searchedReadErrorFormat, path, err)
	}
	return RootConfigurationSource{Reference: path, Content: content}, nil
}
