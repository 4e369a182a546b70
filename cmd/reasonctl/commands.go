package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Harshitk-cp/bayesd/internal/api"
	"github.com/Harshitk-cp/bayesd/internal/buildconfig"
	"github.com/Harshitk-cp/bayesd/internal/config"
	"github.com/Harshitk-cp/bayesd/internal/mcp"
	"github.com/Harshitk-cp/bayesd/internal/model"
	"github.com/Harshitk-cp/bayesd/internal/service"
)

type rootOptions struct {
	catalog string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "reasonctl",
		Short:         "Run Bayesian inference, belief and decision requests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Load()
		},
	}
	root.PersistentFlags().StringVar(&opts.catalog, "catalog", "", "YAML model catalog to load (defaults to MODEL_CATALOG_PATH)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log to stderr")

	root.AddCommand(
		newInferCmd(opts),
		newDecideCmd(opts),
		newMCPCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newInferCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Run one inference request read from a JSON or YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req service.InferenceRequest
			if err := readRequest(file, cmd.InOrStdin(), &req); err != nil {
				return err
			}
			svcs, err := opts.services()
			if err != nil {
				return err
			}
			resp, err := svcs.Reasoning.Infer(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "request file (.json, .yaml or .yml); - reads JSON from stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newDecideCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Evaluate a decision tree read from a JSON or YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req service.DecisionRequest
			if err := readRequest(file, cmd.InOrStdin(), &req); err != nil {
				return err
			}
			svcs, err := opts.services()
			if err != nil {
				return err
			}
			resp, err := svcs.Decisions.Decide(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Path)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "request file (.json, .yaml or .yml); - reads JSON from stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the reasoning tools over MCP on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol; logs must go to stderr.
			opts.verbose = true
			svcs, err := opts.services()
			if err != nil {
				return err
			}
			s := mcp.New(mcp.Services{
				Reasoning: svcs.Reasoning,
				Beliefs:   svcs.Beliefs,
				Decisions: svcs.Decisions,
			}, opts.logger())
			return mcp.ServeStdio(s)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "reasonctl %s (%s)\n", buildconfig.Version(), buildconfig.Commit())
			return err
		},
	}
}

func (o *rootOptions) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func (o *rootOptions) services() (*api.Services, error) {
	logger := o.logger()
	library := model.NewLibrary(logger)

	path := o.catalog
	if path == "" {
		path = config.ModelCatalogPath()
	}
	if path != "" {
		if _, err := library.LoadCatalog(path); err != nil {
			return nil, err
		}
	}
	return api.NewServices(api.Deps{Library: library}, logger), nil
}

// readRequest decodes path into v, choosing YAML or JSON by extension.
func readRequest(path string, stdin io.Reader, v any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("reading request: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
