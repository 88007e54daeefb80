package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kiranshivaraju/futurework/internal/ai"
	"github.com/kiranshivaraju/futurework/internal/config"
	"github.com/kiranshivaraju/futurework/internal/export"
	"github.com/kiranshivaraju/futurework/internal/forecast"
	"github.com/kiranshivaraju/futurework/internal/session"
	"github.com/kiranshivaraju/futurework/internal/sheets"
	"github.com/kiranshivaraju/futurework/internal/state"
	"github.com/spf13/cobra"
)

const (
	msgPredictFailed = "Failed to generate prediction. Please try again."
	msgBulkFailed    = "Failed to generate predictions."
)

// consentFunc obtains a spreadsheet session for owner.
type consentFunc func(ctx context.Context, a *session.Authenticator, owner string, show func(authURL string)) (*session.Session, error)

// app carries what the commands share. Tests replace the predictor and
// consent hooks.
type app struct {
	out    io.Writer
	errOut io.Writer

	statePath string
	verbose   bool

	newPredictor func(ctx context.Context, cfg *config.Config) (forecast.Predictor, error)
	consent      consentFunc
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		out:          out,
		errOut:       errOut,
		newPredictor: defaultPredictor,
		consent:      session.LocalConsent,
	}
}

func defaultPredictor(ctx context.Context, cfg *config.Config) (forecast.Predictor, error) {
	p, err := ai.NewProvider(ctx, cfg.AI)
	if err != nil {
		return nil, err
	}
	return ai.NewService(p, cfg.AI.InferenceTimeout), nil
}

func (a *app) setupLogging() {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level})))
}

func (a *app) stateStore(cfg *config.Config) *state.FileStore {
	if a.statePath != "" {
		return state.NewFileStore(a.statePath)
	}
	return state.NewFileStore(cfg.State.Path)
}

// flowRun is one prediction invocation with an optional spreadsheet session.
type flowRun struct {
	flow *forecast.Flow
	sess *session.Session
}

func (a *app) prepare(ctx context.Context, useSheets bool) (*flowRun, error) {
	cfg, err := config.LoadCLI()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	predictor, err := a.newPredictor(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create AI provider: %w", err)
	}

	st := a.stateStore(cfg)
	run := &flowRun{flow: forecast.NewFlow(predictor, sheets.NewHTTPClient(cfg.Sheets, st))}
	if !useSheets {
		return run, nil
	}

	auth := session.NewAuthenticator(cfg.OAuth, st, session.NewRegistry())
	sess, err := a.consent(ctx, auth, state.LocalOwner, func(authURL string) {
		fmt.Fprintf(a.errOut, "Open this URL in your browser to connect Google Sheets:\n\n  %s\n\n", authURL)
	})
	if errors.Is(err, session.ErrAuthRequired) {
		return nil, errors.New("no Google OAuth client ID configured; run `futurework config set-client-id ID` or set GOOGLE_OAUTH_CLIENT_ID")
	}
	if err != nil {
		return nil, fmt.Errorf("connect google sheets: %w", err)
	}
	run.sess = sess
	return run, nil
}

func (a *app) finish(res *forecast.Result, csvPath string) error {
	if err := renderResult(a.out, res); err != nil {
		return err
	}
	if csvPath == "" {
		return nil
	}
	if csvPath == "-" {
		if err := export.WriteCSV(a.out, res.Predictions); err != nil {
			return err
		}
		_, err := fmt.Fprintln(a.out)
		return err
	}

	f, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	if err := export.WriteCSV(f, res.Predictions); err != nil {
		f.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	fmt.Fprintf(a.errOut, "Saved %d prediction(s) to %s\n", len(res.Predictions), csvPath)
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "futurework",
		Short: "Predict when jobs will be automated, and what to do about it",
		Long: `futurework asks a generative model when a role is likely to be
significantly impacted or replaced by AI and automation, which skills
transfer, and which job to aim for instead.

With --sheets, results are cached in a "FutureWork AI Data" Google Sheet:
rows younger than a month are served from the sheet, older rows are
refreshed in place, and new roles are appended.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.setupLogging()
		},
	}
	root.PersistentFlags().StringVar(&a.statePath, "state", "", "state file (default $FUTUREWORK_STATE_FILE or ~/.futurework/state.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(newPredictCmd(a), newBulkCmd(a), newConfigCmd(a))
	return root
}

func newPredictCmd(a *app) *cobra.Command {
	var (
		input     struct{ industry, country, role string }
		useSheets bool
		csvPath   string
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the automation risk of one role",
		Example: `  futurework predict --industry Finance --country Germany --role "Data Analyst"
  futurework predict --industry Retail --country Brazil --role Cashier --sheets --csv out.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobInput, err := jobInputOf(input.industry, input.country, input.role)
			if err != nil {
				return err
			}
			run, err := a.prepare(cmd.Context(), useSheets)
			if err != nil {
				return err
			}
			res, err := run.flow.Analyze(cmd.Context(), run.sess, jobInput)
			if err != nil {
				fmt.Fprintln(a.errOut, msgPredictFailed)
				return err
			}
			return a.finish(res, csvPath)
		},
	}
	cmd.Flags().StringVar(&input.industry, "industry", "", "industry, e.g. Finance")
	cmd.Flags().StringVar(&input.country, "country", "", "country or market, e.g. Germany")
	cmd.Flags().StringVar(&input.role, "role", "", "job title, e.g. Data Analyst")
	cmd.Flags().BoolVar(&useSheets, "sheets", false, "use your Google Sheet as a cache (opens a consent URL)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "also write results as CSV to this file (- for stdout)")
	for _, f := range []string{"industry", "country", "role"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newBulkCmd(a *app) *cobra.Command {
	var (
		industry  string
		useSheets bool
		csvPath   string
	)
	cmd := &cobra.Command{
		Use:     "bulk",
		Short:   "Predict the five roles of an industry most at risk",
		Example: `  futurework bulk --industry Logistics --csv logistics.csv`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			industry = strings.TrimSpace(industry)
			if industry == "" {
				return errors.New("please enter an industry")
			}
			run, err := a.prepare(cmd.Context(), useSheets)
			if err != nil {
				return err
			}
			res, err := run.flow.AnalyzeBulk(cmd.Context(), run.sess, industry)
			if err != nil {
				fmt.Fprintln(a.errOut, msgBulkFailed)
				return err
			}
			return a.finish(res, csvPath)
		},
	}
	cmd.Flags().StringVar(&industry, "industry", "", "industry, e.g. Logistics")
	cmd.Flags().BoolVar(&useSheets, "sheets", false, "append results to your Google Sheet (opens a consent URL)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "also write results as CSV to this file (- for stdout)")
	_ = cmd.MarkFlagRequired("industry")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change persisted settings",
	}

	setClient := &cobra.Command{
		Use:   "set-client-id CLIENT_ID",
		Short: "Save the Google OAuth client ID used to connect Google Sheets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			auth := session.NewAuthenticator(cfg.OAuth, a.stateStore(cfg), session.NewRegistry())
			if err := auth.SetClientID(cmd.Context(), state.LocalOwner, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Client ID saved.")
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the persisted settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromEnv()
			st := a.stateStore(cfg)
			saved, err := st.All(cmd.Context(), state.LocalOwner)
			if err != nil {
				return err
			}
			clientID := saved[state.KeyClientID]
			if clientID == "" {
				clientID = cfg.OAuth.ClientID
			}
			return renderSettings(a.out, []setting{
				{"State file", st.Path()},
				{"OAuth client ID", clientID},
				{"Spreadsheet ID", saved[state.KeySpreadsheetID]},
				{"Model", cfg.AI.Gemini.Model},
			})
		},
	}

	cmd.AddCommand(setClient, show)
	return cmd
}
