package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/safecall/internal/storage"
	"github.com/MarkoPoloResearchLab/safecall/internal/task"
)

const (
	commandUseName               = "server"
	commandShortDescription      = "Run the SafeCall server"
	commandLongDescription       = "Launch the SafeCall HTTP server: emergency contacts, SOS alerts and account approval"
	missingConfigurationMessage  = "missing required configuration"
	sessionSecretTooShortMessage = "session secret must be at least 32 bytes"
	loggerCreationErrorMessage   = "logger"
	readConfigFileErrorMessage   = "read config file"
	unexpectedArgumentsMessage   = "unexpected command arguments"
	commandInitializationFailure = "failed to configure command"
	flagNotDefinedMessage        = "flag %s not defined"
	environmentConfigurationErr  = "failed to apply environment configuration"
	parseDurationErrorMessage    = "parse duration %s"

	logEventListening      = "listening"
	logEventShutdown       = "shutdown"
	logEventMaintenanceOn  = "maintenance_started"
	logEventMaintenanceOff = "maintenance_stopped"
	logFieldInterval       = "interval"
	logFieldAddress        = "addr"
	logFieldDriver         = "driver"
	loggerContextOpenDB    = "open_db"
	loggerContextMigrate   = "migrate"
	loggerContextServer    = "server"
	loggerContextAssemble  = "assemble"

	flagNameConfigFile          = "config"
	flagNameApplicationAddress  = "app-addr"
	flagNameDatabaseDriver      = "db-driver"
	flagNameDatabaseDSN         = "db-dsn"
	flagNameSessionSecret       = "session-secret"
	flagNameAdminEmails         = "admin-emails"
	flagNamePublicBaseURL       = "public-base-url"
	flagNameGoogleClientID      = "google-client-id"
	flagNameGoogleClientSecret  = "google-client-secret"
	flagNameApprovalRule        = "approval-rule"
	flagNameSOSCountdown        = "sos-countdown"
	flagNameAlertRetentionDays  = "alert-retention-days"
	flagNameAllowedOrigins      = "allowed-origins"
	flagNameMaintenanceInterval = "maintenance-interval"

	environmentKeyApplicationAddress  = "APP_ADDR"
	environmentKeyDatabaseDriver      = "DB_DRIVER"
	environmentKeyDatabaseDSN         = "DB_DSN"
	environmentKeySessionSecret       = "SESSION_SECRET"
	environmentKeyAdminEmails         = "ADMIN_EMAILS"
	environmentKeyPublicBaseURL       = "PUBLIC_BASE_URL"
	environmentKeyGoogleClientID      = "GOOGLE_CLIENT_ID"
	environmentKeyGoogleClientSecret  = "GOOGLE_CLIENT_SECRET"
	environmentKeyApprovalRule        = "APPROVAL_RULE"
	environmentKeySOSCountdown        = "SOS_COUNTDOWN"
	environmentKeyAlertRetentionDays  = "ALERT_RETENTION_DAYS"
	environmentKeyAllowedOrigins      = "ALLOWED_ORIGINS"
	environmentKeyMaintenanceInterval = "MAINTENANCE_INTERVAL"

	defaultApplicationAddress  = ":8080"
	defaultDatabaseDriver      = storage.DriverNameSQLite
	defaultPublicBaseURL       = "http://localhost:8080"
	defaultSOSCountdown        = "3s"
	defaultMaintenanceInterval = "1h"
	minimumSessionSecretBytes  = 32
	listSeparator              = ","
	readHeaderTimeout          = 5 * time.Second
	shutdownTimeout            = 10 * time.Second
)

// ServerConfig captures configuration needed to run the server.
type ServerConfig struct {
	ApplicationAddress     string
	DatabaseDriver         string
	DatabaseDataSourceName string
	SessionSecret          string
	AdminEmails            []string
	PublicBaseURL          string
	GoogleClientID         string
	GoogleClientSecret     string
	ApprovalRule           string
	SOSCountdown           time.Duration
	AlertRetentionDays     int
	AllowedOrigins         []string
	MaintenanceInterval    time.Duration
}

// GoogleSignInEnabled reports whether both Google client credentials are configured.
func (config ServerConfig) GoogleSignInEnabled() bool {
	return config.GoogleClientID != "" && config.GoogleClientSecret != ""
}

// DatabaseOpener opens a database connection for the configured driver.
type DatabaseOpener func(storage.Config) (*gorm.DB, error)

// ServerApplication constructs and executes the server command.
type ServerApplication struct {
	configurationLoader *viper.Viper
	databaseOpener      DatabaseOpener
}

type flagBinding struct {
	environmentKey string
	flagName       string
	defaultValue   string
	usage          string
}

var flagBindings = []flagBinding{
	{environmentKeyApplicationAddress, flagNameApplicationAddress, defaultApplicationAddress, "address for the HTTP server to listen on"},
	{environmentKeyDatabaseDriver, flagNameDatabaseDriver, defaultDatabaseDriver, "database driver (sqlite or postgres)"},
	{environmentKeyDatabaseDSN, flagNameDatabaseDSN, "", "database connection string"},
	{environmentKeySessionSecret, flagNameSessionSecret, "", "secret used to sign session cookies (at least 32 bytes)"},
	{environmentKeyAdminEmails, flagNameAdminEmails, "", "comma-separated emails that always hold the admin role"},
	{environmentKeyPublicBaseURL, flagNamePublicBaseURL, defaultPublicBaseURL, "public URL used for Google sign-in callbacks"},
	{environmentKeyGoogleClientID, flagNameGoogleClientID, "", "Google OAuth client id"},
	{environmentKeyGoogleClientSecret, flagNameGoogleClientSecret, "", "Google OAuth client secret"},
	{environmentKeyApprovalRule, flagNameApprovalRule, "", "expression that auto-approves matching sign-ups"},
	{environmentKeySOSCountdown, flagNameSOSCountdown, defaultSOSCountdown, "countdown before an SOS starts locating"},
	{environmentKeyAlertRetentionDays, flagNameAlertRetentionDays, "0", "days to keep alert logs (0 keeps them forever)"},
	{environmentKeyAllowedOrigins, flagNameAllowedOrigins, "", "comma-separated origins allowed to call the API with credentials"},
	{environmentKeyMaintenanceInterval, flagNameMaintenanceInterval, defaultMaintenanceInterval, "interval between maintenance passes"},
}

// NewServerApplication creates a ServerApplication with default dependencies.
func NewServerApplication() *ServerApplication {
	return &ServerApplication{
		configurationLoader: viper.New(),
		databaseOpener:      storage.OpenDatabase,
	}
}

// WithDatabaseOpener overrides the database opener dependency.
func (application *ServerApplication) WithDatabaseOpener(databaseOpener DatabaseOpener) *ServerApplication {
	application.databaseOpener = databaseOpener
	return application
}

// Command builds the Cobra command for the server.
func (application *ServerApplication) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:   commandUseName,
		Short: commandShortDescription,
		Long:  commandLongDescription,
		RunE:  application.runCommand,
	}

	if configurationErr := application.configureCommand(rootCommand); configurationErr != nil {
		return nil, configurationErr
	}

	return rootCommand, nil
}

func (application *ServerApplication) configureCommand(command *cobra.Command) error {
	application.configurationLoader.AutomaticEnv()

	commandFlags := command.Flags()
	commandFlags.String(flagNameConfigFile, "", "optional YAML configuration file")

	for _, binding := range flagBindings {
		application.configurationLoader.SetDefault(binding.environmentKey, binding.defaultValue)
		commandFlags.String(binding.flagName, binding.defaultValue, binding.usage)

		if bindErr := application.bindFlag(commandFlags, binding.environmentKey, binding.flagName); bindErr != nil {
			return bindErr
		}
		if environmentErr := application.applyEnvironmentConfiguration(commandFlags, binding.environmentKey, binding.flagName); environmentErr != nil {
			return environmentErr
		}
	}

	return nil
}

func (application *ServerApplication) bindFlag(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf(flagNotDefinedMessage, flagName)
	}

	return application.configurationLoader.BindPFlag(environmentKey, flag)
}

func (application *ServerApplication) applyEnvironmentConfiguration(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	environmentValue, environmentFound := os.LookupEnv(environmentKey)
	if !environmentFound {
		return nil
	}

	if setErr := flagSet.Set(flagName, environmentValue); setErr != nil {
		return fmt.Errorf("%s: %w", environmentConfigurationErr, setErr)
	}

	return nil
}

func (application *ServerApplication) runCommand(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}

	serverConfig, configErr := application.loadServerConfig(command)
	if configErr != nil {
		return configErr
	}

	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return fmt.Errorf("%s: %w", loggerCreationErrorMessage, loggerErr)
	}
	defer func() {
		_ = logger.Sync()
	}()

	database, databaseErr := application.databaseOpener(storage.Config{
		DriverName:     serverConfig.DatabaseDriver,
		DataSourceName: serverConfig.DatabaseDataSourceName,
	})
	if databaseErr != nil {
		logger.Error(loggerContextOpenDB, zap.String(logFieldDriver, serverConfig.DatabaseDriver), zap.Error(databaseErr))
		return databaseErr
	}

	if migrateErr := storage.AutoMigrate(database); migrateErr != nil {
		logger.Error(loggerContextMigrate, zap.Error(migrateErr))
		return migrateErr
	}

	components, assembleErr := assembleComponents(serverConfig, database, logger)
	if assembleErr != nil {
		logger.Error(loggerContextAssemble, zap.Error(assembleErr))
		return assembleErr
	}

	parentContext := command.Context()
	if parentContext == nil {
		parentContext = context.Background()
	}
	signalContext, stopSignals := signal.NotifyContext(parentContext, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	return serve(signalContext, serverConfig, components, logger)
}

func serve(ctx context.Context, serverConfig ServerConfig, components *serverComponents, logger *zap.Logger) error {
	httpServer := &http.Server{
		Addr:              serverConfig.ApplicationAddress,
		Handler:           newRouter(logger, components.routes),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	group, groupContext := errgroup.WithContext(ctx)
	startMaintenance(groupContext, components.scheduler, logger)

	group.Go(func() error {
		logger.Info(logEventListening, zap.String(logFieldAddress, serverConfig.ApplicationAddress))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error(loggerContextServer, zap.Error(serveErr))
			return serveErr
		}
		return nil
	})

	group.Go(func() error {
		<-groupContext.Done()
		logger.Info(logEventShutdown)
		stopMaintenance(components.scheduler, logger)
		shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownContext)
	})

	return group.Wait()
}

func startMaintenance(ctx context.Context, scheduler *task.Scheduler, logger *zap.Logger) {
	scheduler.Start(ctx)
	if scheduler.Running() {
		logger.Info(logEventMaintenanceOn, zap.Duration(logFieldInterval, scheduler.Interval()))
	}
}

func stopMaintenance(scheduler *task.Scheduler, logger *zap.Logger) {
	if !scheduler.Running() {
		return
	}
	scheduler.Stop()
	logger.Info(logEventMaintenanceOff)
}

func (application *ServerApplication) loadServerConfig(command *cobra.Command) (ServerConfig, error) {
	loader := application.configurationLoader

	configFile, _ := command.Flags().GetString(flagNameConfigFile)
	if trimmedConfigFile := strings.TrimSpace(configFile); trimmedConfigFile != "" {
		loader.SetConfigFile(trimmedConfigFile)
		if readErr := loader.ReadInConfig(); readErr != nil {
			return ServerConfig{}, fmt.Errorf("%s: %w", readConfigFileErrorMessage, readErr)
		}
	}

	serverConfig := ServerConfig{
		ApplicationAddress:     strings.TrimSpace(loader.GetString(environmentKeyApplicationAddress)),
		DatabaseDriver:         strings.TrimSpace(loader.GetString(environmentKeyDatabaseDriver)),
		DatabaseDataSourceName: strings.TrimSpace(loader.GetString(environmentKeyDatabaseDSN)),
		SessionSecret:          strings.TrimSpace(loader.GetString(environmentKeySessionSecret)),
		AdminEmails:            splitList(loader.GetString(environmentKeyAdminEmails)),
		PublicBaseURL:          strings.TrimRight(strings.TrimSpace(loader.GetString(environmentKeyPublicBaseURL)), "/"),
		GoogleClientID:         strings.TrimSpace(loader.GetString(environmentKeyGoogleClientID)),
		GoogleClientSecret:     strings.TrimSpace(loader.GetString(environmentKeyGoogleClientSecret)),
		ApprovalRule:           strings.TrimSpace(loader.GetString(environmentKeyApprovalRule)),
		AlertRetentionDays:     loader.GetInt(environmentKeyAlertRetentionDays),
		AllowedOrigins:         splitList(loader.GetString(environmentKeyAllowedOrigins)),
	}

	if validationErr := application.ensureRequiredConfiguration(serverConfig); validationErr != nil {
		return ServerConfig{}, validationErr
	}

	countdown, countdownErr := parseDuration(loader, environmentKeySOSCountdown)
	if countdownErr != nil {
		return ServerConfig{}, countdownErr
	}
	serverConfig.SOSCountdown = countdown

	interval, intervalErr := parseDuration(loader, environmentKeyMaintenanceInterval)
	if intervalErr != nil {
		return ServerConfig{}, intervalErr
	}
	serverConfig.MaintenanceInterval = interval

	return serverConfig, nil
}

func (application *ServerApplication) ensureRequiredConfiguration(configuration ServerConfig) error {
	var missingParameters []string

	if configuration.DatabaseDataSourceName == "" {
		missingParameters = append(missingParameters, flagNameDatabaseDSN)
	}

	if configuration.SessionSecret == "" {
		missingParameters = append(missingParameters, flagNameSessionSecret)
	}

	if len(missingParameters) > 0 {
		return fmt.Errorf("%s: %s", missingConfigurationMessage, strings.Join(missingParameters, ", "))
	}

	if len(configuration.SessionSecret) < minimumSessionSecretBytes {
		return fmt.Errorf("%s: %s", sessionSecretTooShortMessage, flagNameSessionSecret)
	}

	return nil
}

func parseDuration(loader *viper.Viper, key string) (time.Duration, error) {
	rawValue := strings.TrimSpace(loader.GetString(key))
	duration, parseErr := time.ParseDuration(rawValue)
	if parseErr != nil {
		return 0, fmt.Errorf(parseDurationErrorMessage+": %w", key, parseErr)
	}
	return duration, nil
}

func splitList(rawValue string) []string {
	var values []string
	for _, segment := range strings.Split(rawValue, listSeparator) {
		if trimmedSegment := strings.TrimSpace(segment); trimmedSegment != "" {
			values = append(values, trimmedSegment)
		}
	}
	return values
}

func main() {
	application := NewServerApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}

	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
