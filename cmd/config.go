package cmd

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"nest.dev/pkg/nest/internal/domain"
)

const (
	configBaseName = "settings"
	configFileName = configBaseName + ".yaml"

	envPrefix = "NEST"

	homeKey        = "home"
	defaultHomeDir = ".nest"

	searchPathsKey         = "search_paths.file"
	defaultSearchPathsFile = "search_paths.yaml"

	namespaceSeparatorKey  = "namespace.separator"
	namespaceReverseKey    = "namespace.reverse"
	namespaceOrderKey      = "namespace.order"
	namespaceConfigFileKey = "namespace.config_file"

	reloadIntervalKey   = "reload.interval"
	reloadServeStaleKey = "reload.serve_stale"

	parserVariablePrefixKey = "parser.variable_prefix"
	parserStrictKey         = "parser.strict"

	errorsRaiseKey       = "errors.raise"
	discoveryParallelKey = "discovery.parallel"
	watchDebounceKey     = "watch.debounce"
	uiPlainKey           = "ui.plain"

	defaultWatchDebounce  = 200 * time.Millisecond
	defaultNamespaceFile  = "nest.yml"
	defaultNamespaceSep   = "."
	defaultReloadInterval = time.Duration(0)

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = "nest.log"
	defaultLogLevel      = "info"
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

// initConfig resets viper to the defaults, then layers $NEST_HOME/settings.yaml
// and NEST_* environment variables on top.
func initConfig() {
	viper.Reset()
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.SetDefault(homeKey, defaultHome())
	viper.SetDefault(searchPathsKey, "")

	viper.SetDefault(namespaceSeparatorKey, defaultNamespaceSep)
	viper.SetDefault(namespaceReverseKey, false)
	viper.SetDefault(namespaceOrderKey, []string{})
	viper.SetDefault(namespaceConfigFileKey, defaultNamespaceFile)

	viper.SetDefault(reloadIntervalKey, defaultReloadInterval)
	viper.SetDefault(reloadServeStaleKey, false)

	viper.SetDefault(parserVariablePrefixKey, domain.DefaultVariablePrefix)
	viper.SetDefault(parserStrictKey, true)

	viper.SetDefault(errorsRaiseKey, false)
	viper.SetDefault(discoveryParallelKey, domain.DefaultParallel)
	viper.SetDefault(watchDebounceKey, defaultWatchDebounce)
	viper.SetDefault(uiPlainKey, false)

	viper.SetDefault(logFilenameKey, "")
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, false)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)

	viper.SetConfigFile(settingsFile())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return
		}

		slog.Warn("Failed to read settings", "path", settingsFile(), "error", err)
	}
}

func defaultHome() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return defaultHomeDir
	}

	return filepath.Join(dir, defaultHomeDir)
}

func nestHome() string {
	return viper.GetString(homeKey)
}

func settingsFile() string {
	return filepath.Join(nestHome(), configFileName)
}

// homePath returns the value of key, or base inside the nest home when the
// key is empty.
func homePath(key, base string) string {
	if v := strings.TrimSpace(viper.GetString(key)); v != "" {
		return v
	}

	return filepath.Join(nestHome(), base)
}

func searchPathsFile() string {
	return homePath(searchPathsKey, defaultSearchPathsFile)
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger installs a slog text handler over a rotating log file.
// Verbose forces debug level.
func configureLogger(verbose bool) {
	logLevel := parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	if verbose {
		logLevel = slog.LevelDebug
	}

	logWriter := &lumberjack.Logger{
		Filename:   homePath(logFilenameKey, defaultLogFilename),
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	slog.SetDefault(slog.New(handler))
}
