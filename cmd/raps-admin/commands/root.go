// Package commands builds the raps-admin command tree.
package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/audit"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/config"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/internal/acc"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/internal/auth"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/operations"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/state"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/version"
)

// rootOptions carries the persistent flags.
type rootOptions struct {
	configPath string
	profile    string
	verbose    bool
}

// NewRootCommand builds the raps-admin command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "raps-admin",
		Short:         "Bulk administration for construction cloud accounts",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Path to the configuration file")
	root.PersistentFlags().StringVar(&opts.profile, "profile", "",
		"Configuration profile to use")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Enable debug logging")

	root.AddCommand(bulkCommand(opts))
	root.AddCommand(operationsCommand(opts))
	root.AddCommand(configCommand(opts))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.FullVersion())
		},
	})

	return root
}

// environment bundles everything a command run needs.
type environment struct {
	config  *config.Config
	profile config.Profile
	logger  zerolog.Logger
	store   *state.Store
	service *operations.Service
}

// newEnvironment loads configuration and wires the service.
func newEnvironment(opts *rootOptions) (*environment, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.profile != "" {
		cfg.Profile = opts.profile
		if len(cfg.Profiles) > 0 {
			if _, ok := cfg.Profiles[cfg.Profile]; !ok {
				return nil, fmt.Errorf("profile %q is not defined", cfg.Profile)
			}
		}
	}

	logger := newLogger(cfg, opts.verbose)
	profile := cfg.ActiveProfile()

	store, err := newStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	tokens := auth.EnvTokenSource(profile.TokenEnv)
	clientOpts := acc.Options{BaseURL: profile.BaseURL}

	auditor, err := newAuditor(cfg)
	if err != nil {
		return nil, err
	}

	service, err := operations.CreateService(
		acc.NewAccountAdminClient(tokens, clientOpts),
		acc.NewProjectUsersClient(tokens, clientOpts),
		acc.NewFolderPermissionsClient(tokens, clientOpts),
		store,
		auditor,
		logger,
	)
	if err != nil {
		return nil, err
	}

	return &environment{
		config:  cfg,
		profile: profile,
		logger:  logger,
		store:   store,
		service: service,
	}, nil
}

func newLogger(cfg *config.Config, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err == nil &&
		cfg.Log.Level != "" {
		level = parsed
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func newStore(cfg *config.Config, logger zerolog.Logger) (*state.Store, error) {
	if cfg.State.Dir != "" {
		return state.CreateStoreWithDir(cfg.State.Dir, logger)
	}
	return state.CreateStore(logger)
}

func newAuditor(cfg *config.Config) (audit.Logger, error) {
	path := cfg.State.AuditLog
	if path == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return audit.NewLogger(audit.NewMemoryStorage()), nil
		}
		path = filepath.Join(base, "raps", "audit.log")
	}
	storage, err := audit.NewFileStorage(path)
	if err != nil {
		return nil, err
	}
	return audit.NewLogger(storage), nil
}

// accountID picks the explicit flag value over the profile default.
func (e *environment) accountID(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if e.profile.AccountID != "" {
		return e.profile.AccountID, nil
	}
	return "", fmt.Errorf("no account id: pass --account or set account_id in the profile")
}
