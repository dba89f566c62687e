// Package commands implements the comptox command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/comptox-ai/comptox-api-client/internal/app"
	"github.com/comptox-ai/comptox-api-client/internal/config"
	"github.com/comptox-ai/comptox-api-client/internal/logger"
)

type options struct {
	baseURL   string
	rawParams bool
	asJSON    bool
	timeout   time.Duration
}

// runtime is built once per invocation, before the selected command runs.
type runtime struct {
	opts options
	cfg  *config.Config
	log  logger.Logger
	app  *app.App
}

// Execute runs the command line with args.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	rt := &runtime{}
	root := newRootCmd(rt)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	return errors.Join(err, rt.close())
}

func newRootCmd(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:   "comptox",
		Short: "Client for the ComptoxAI graph REST API",
		Long: `comptox queries the ComptoxAI graph backend: the client config,
node searches by label and property, and relationships leaving a node.
Responses go through a query cache that can persist to disk.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&rt.opts.baseURL, "base-url", "", "backend base URL (overrides BASE_URL)")
	flags.BoolVar(&rt.opts.rawParams, "raw-params", false, "interpolate parameters without percent-encoding")
	flags.BoolVar(&rt.opts.asJSON, "json", false, "print decoded responses as JSON")
	flags.DurationVar(&rt.opts.timeout, "timeout", 0, "per-request timeout (0 means none)")

	root.AddCommand(
		newConfigCmd(rt),
		newSearchCmd(rt),
		newRelationshipsCmd(rt),
		newURLCmd(rt),
		newWatchCmd(rt),
	)
	return root
}

func (rt *runtime) init(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL = strings.TrimRight(strings.TrimSpace(rt.opts.baseURL), "/")
	}
	if rt.opts.rawParams {
		cfg.EncodeParams = false
	}
	if flags.Changed("timeout") {
		if rt.opts.timeout < 0 {
			return fmt.Errorf("timeout must not be negative")
		}
		cfg.RequestTimeout = rt.opts.timeout
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.DebugObj("comptox starting", "config", cfg)

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	rt.cfg, rt.log, rt.app = cfg, log, a
	return nil
}

func (rt *runtime) close() error {
	var errs []error
	if rt.app != nil {
		errs = append(errs, rt.app.Close())
	}
	_ = logger.Close()
	return errors.Join(errs...)
}
