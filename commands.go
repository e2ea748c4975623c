package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/duynguyendang/outgassing/internal/manager"
	"github.com/duynguyendang/outgassing/pkg/config"
	"github.com/duynguyendang/outgassing/pkg/dataset"
	"github.com/duynguyendang/outgassing/pkg/mcp"
	"github.com/duynguyendang/outgassing/pkg/query"
	"github.com/duynguyendang/outgassing/pkg/server"
)

var (
	configPath  string
	datasetPath string
	profileName string
)

var rootCmd = &cobra.Command{
	Use:           "outgassing",
	Short:         "Outgassing material compliance lookup",
	Long:          "Query the outgassing database for materials that meet TML and CVCM limits, over MCP, HTTP or the command line.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// app is the wiring shared by every subcommand.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	loader *manager.DatasetManager
	engine *query.Engine
}

func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if datasetPath != "" {
		cfg.DatasetPath = datasetPath
	}
	if profileName != "" {
		cfg.Engine.MatchProfile = profileName
		cfg.Engine.MatchThreshold = nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	// stdout carries the MCP stdio transport and command output.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	qc, err := cfg.Query()
	if err != nil {
		return nil, err
	}
	loader := manager.NewDatasetManager(dataset.FileSource{Path: cfg.DatasetPath}, manager.WithLogger(logger))
	return &app{
		cfg:    cfg,
		logger: logger,
		loader: loader,
		engine: query.NewEngine(loader, qc, query.WithLogger(logger)),
	}, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		// Load up front; a failure is reported by every tool call.
		if _, err := a.loader.Dataset(cmd.Context()); err != nil {
			a.logger.Warn("serving without dataset", "error", err)
		}
		return mcp.New(a.engine, a.logger).Run()
	},
}

var httpCmd = &cobra.Command{
	Use:   "http",
	Short: "Run the REST API server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		if _, err := a.loader.Dataset(cmd.Context()); err != nil {
			a.logger.Warn("serving without dataset", "error", err)
		}
		srv := server.NewServer(a.engine, a.loader, server.WithLogger(a.logger))
		return srv.Run(a.cfg.HTTP.Addr)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <material>",
	Short: "Fuzzy-search materials by name and check them against the limits",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		q := query.NameQuery{Material: strings.Join(args, " ")}
		q.MaxTML, q.MaxCVCM = limitFlags(cmd)
		q.Limit, _ = cmd.Flags().GetInt("limit")
		q.CompliantOnly = boolFlag(cmd, "compliant-only")
		q.IncludeDetails = boolFlag(cmd, "details")

		res, err := a.engine.SearchByName(cmd.Context(), q)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var applicationCmd = &cobra.Command{
	Use:   "application <application>",
	Short: "List compliant materials used for an application",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		q := query.ApplicationQuery{Application: strings.Join(args, " ")}
		q.MaxTML, q.MaxCVCM = limitFlags(cmd)
		q.IncludeDetails = boolFlag(cmd, "details")

		res, err := a.engine.SearchByApplication(cmd.Context(), q)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <material-id>",
	Short: "Show the full record for a material ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		res, err := a.engine.Lookup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var applicationsCmd = &cobra.Command{
	Use:   "applications",
	Short: "List every distinct application in the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		res, err := a.engine.Applications(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func limitFlags(cmd *cobra.Command) (maxTML, maxCVCM *float64) {
	if cmd.Flags().Changed("max-tml") {
		v, _ := cmd.Flags().GetFloat64("max-tml")
		maxTML = &v
	}
	if cmd.Flags().Changed("max-cvcm") {
		v, _ := cmd.Flags().GetFloat64("max-cvcm")
		maxCVCM = &v
	}
	return maxTML, maxCVCM
}

func boolFlag(cmd *cobra.Command, name string) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetBool(name)
	return &v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&datasetPath, "dataset", "", "path to the outgassing CSV (overrides config)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "match profile: raw, standard or strict (overrides config)")

	for _, c := range []*cobra.Command{searchCmd, applicationCmd} {
		c.Flags().Float64("max-tml", 1.0, "maximum adjusted TML in percent")
		c.Flags().Float64("max-cvcm", 0.1, "maximum CVCM in percent")
		c.Flags().Bool("details", false, "include manufacturer and WVR")
	}
	searchCmd.Flags().Int("limit", 0, "max number of results (0 uses the configured default)")
	searchCmd.Flags().Bool("compliant-only", false, "return only materials meeting both limits")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(httpCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(applicationCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(applicationsCmd)
}
