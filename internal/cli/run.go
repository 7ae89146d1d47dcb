package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nanoagent/nanoagent/internal/config"
	"github.com/nanoagent/nanoagent/pkg/agent"
	"github.com/nanoagent/nanoagent/pkg/permission"
	"github.com/nanoagent/nanoagent/pkg/provider"
	"github.com/nanoagent/nanoagent/pkg/session"
	"github.com/nanoagent/nanoagent/pkg/toolkit"
	"github.com/nanoagent/nanoagent/pkg/usage"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var permErr *permission.Error
	if errors.As(err, &permErr) {
		return ExitPermissionDenied
	}
	var cfgErr *provider.ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfigError
	}
	return ExitExecutionError
}

type runFlags struct {
	providerName string
	model        string
	temperature  float64
	maxTokens    int
	maxTurns     int
	timeout      time.Duration
	systemPrompt string

	allowTools []string
	blockTools []string
	allowPaths []string
	blockPaths []string
	readOnly   bool

	resume     bool
	sessionID  string
	noSession  bool
	newSession bool

	apiKey    string
	baseURL   string
	workspace string
	clientID  string
	quiet     bool
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run an agent task",
		Long: `Run executes the prompt as an autonomous agent task. The model can
call filesystem tools (subject to the permission policy) across
multiple turns until it produces a final answer.

The final answer is written to stdout; a usage summary goes to
stderr. Tool calls denied mid-run are reported back to the model and
do not fail the run. Exit codes: 0 success, 2 the request itself was
rejected by the permission policy, 3 configuration error, 4 execution
error, 5 turn limit reached, 6 timed out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd, flags, args[0])
		},
	}

	cmd.Flags().StringVarP(&flags.providerName, "provider", "p", "", "LLM provider (openai, anthropic, ollama, lmstudio)")
	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "model name")
	cmd.Flags().Float64Var(&flags.temperature, "temperature", 0, "sampling temperature")
	cmd.Flags().IntVar(&flags.maxTokens, "max-tokens", 0, "max output tokens per exchange")
	cmd.Flags().IntVar(&flags.maxTurns, "max-turns", 0, "max tool-calling turns")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "wall-clock run timeout (eg. 2m)")
	cmd.Flags().StringVar(&flags.systemPrompt, "system-prompt", "", "override the system prompt")

	cmd.Flags().StringSliceVar(&flags.allowTools, "allow-tool", nil, "restrict the run to these tools")
	cmd.Flags().StringSliceVar(&flags.blockTools, "block-tool", nil, "deny these tools")
	cmd.Flags().StringSliceVar(&flags.allowPaths, "allow-path", nil, "restrict file access to these paths")
	cmd.Flags().StringSliceVar(&flags.blockPaths, "block-path", nil, "deny file access to these paths")
	cmd.Flags().BoolVar(&flags.readOnly, "read-only", false, "deny all write-class tools")

	cmd.Flags().StringVar(&flags.clientID, "client", "", "client id stamped on sessions this run creates")
	cmd.Flags().BoolVar(&flags.resume, "resume", false, "resume the most recent session")
	cmd.Flags().StringVar(&flags.sessionID, "session", "", "resume a specific session id")
	cmd.Flags().BoolVar(&flags.noSession, "no-session", false, "do not persist this run")
	cmd.Flags().BoolVar(&flags.newSession, "new-session", false, "always start a fresh session")

	cmd.Flags().StringVar(&flags.apiKey, "api-key", "", "override the provider API key")
	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "override the provider endpoint")
	cmd.Flags().StringVarP(&flags.workspace, "workspace", "w", "", "working directory for file tools")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "suppress the usage summary")

	return cmd
}

func runAgent(cmd *cobra.Command, flags *runFlags, prompt string) error {
	cfg, err := loadConfig()
	if err != nil {
		return &ExitError{Code: ExitConfigError, Err: err}
	}

	l, err := setupLogger(cfg)
	if err != nil {
		return &ExitError{Code: ExitConfigError, Err: err}
	}
	defer l.Close()

	runID := uuid.NewString()
	runLog := l.With().Str("run_id", runID).Logger()
	runLog.Debug().Str("prompt", prompt).Msg("Starting run")

	runner, err := buildRunner(cfg, flags, runLog)
	if err != nil {
		return wrapConfigError(err)
	}

	req, err := buildRequest(cfg, flags, prompt)
	if err != nil {
		return wrapConfigError(err)
	}

	result, err := runner.Run(cmd.Context(), req)
	if err != nil {
		return wrapConfigError(err)
	}

	if result.Response != "" {
		fmt.Fprintln(cmd.OutOrStdout(), result.Response)
	}
	if !flags.quiet {
		printSummary(cmd, result)
	}

	return resultError(result)
}

func buildRunner(cfg *config.Config, flags *runFlags, runLog zerolog.Logger) (*agent.Runner, error) {
	workspace := flags.workspace
	if workspace == "" {
		workspace = cfg.Workspace
	}

	registry := toolkit.NewRegistry()
	if err := toolkit.RegisterCoreTools(registry, toolkit.Options{WorkingDir: workspace}); err != nil {
		return nil, err
	}

	store, err := session.NewStore(cfg.Sessions.Dir)
	if err != nil {
		return nil, err
	}

	return agent.NewRunner(agent.Config{
		Resolver:  provider.NewResolver(os.Getenv, runLog),
		Registry:  registry,
		Store:     store,
		Logger:    runLog,
		Retry:     agent.DefaultRetryPolicy(),
		Workspace: workspace,
	})
}

func buildRequest(cfg *config.Config, flags *runFlags, prompt string) (agent.Request, error) {
	// On a resume, settings the flags leave unset come from the
	// continued session rather than the config defaults.
	resuming := flags.resume || flags.sessionID != ""

	providerName := flags.providerName
	if providerName == "" && !resuming {
		providerName = cfg.Provider.Default
	}
	model := flags.model
	if model == "" && !resuming {
		model = cfg.Provider.Model
	}
	if (providerName == "" || model == "") && !resuming {
		return agent.Request{}, provider.NewConfigError("provider and model must be set via flags or config")
	}

	temperature := flags.temperature
	if temperature == 0 && !resuming {
		temperature = cfg.Agent.Temperature
	}
	maxTokens := flags.maxTokens
	if maxTokens == 0 && !resuming {
		maxTokens = cfg.Agent.MaxTokens
	}
	maxTurns := flags.maxTurns
	if maxTurns == 0 {
		maxTurns = cfg.Agent.MaxTurns
	}
	timeout := flags.timeout
	if timeout == 0 {
		timeout = cfg.Agent.Timeout()
	}
	systemPrompt := flags.systemPrompt
	if systemPrompt == "" {
		systemPrompt = cfg.Agent.SystemPrompt
	}

	policy := permission.Policy{
		AllowedTools: append(cfg.Permissions.AllowedTools, flags.allowTools...),
		BlockedTools: append(cfg.Permissions.BlockedTools, flags.blockTools...),
		AllowedPaths: append(cfg.Permissions.AllowedPaths, flags.allowPaths...),
		BlockedPaths: append(cfg.Permissions.BlockedPaths, flags.blockPaths...),
		ReadOnly:     cfg.Permissions.ReadOnly || flags.readOnly,
	}

	// An explicit allow list also narrows which tool schemas the model
	// sees; naming a tool the policy blocks rejects the whole request.
	tools := policy.AllowedTools

	mode := agent.SessionSave
	if flags.noSession {
		mode = agent.SessionEphemeral
	} else if flags.newSession {
		mode = agent.SessionForceNew
	}

	baseURL := flags.baseURL
	if baseURL == "" {
		baseURL = cfg.Provider.Endpoints[providerName]
	}

	return agent.Request{
		Prompt:       prompt,
		Provider:     providerName,
		Model:        model,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
		SystemPrompt: systemPrompt,
		MaxTurns:     maxTurns,
		Timeout:      timeout,
		Tools:        tools,
		Policy:       policy,
		SessionMode:  mode,
		SessionID:    flags.sessionID,
		Resume:       flags.resume,
		ClientID:     flags.clientID,
		Overrides: provider.Overrides{
			APIKey:  flags.apiKey,
			BaseURL: baseURL,
		},
	}, nil
}

func printSummary(cmd *cobra.Command, result agent.Result) {
	var b strings.Builder
	fmt.Fprintf(&b, "status: %s", result.Status)
	if result.SessionID != "" {
		fmt.Fprintf(&b, "  session: %s", result.SessionID)
	}
	fmt.Fprintf(&b, "  turns: %d  tokens: %s  cost: %s  duration: %s",
		result.Turns,
		usage.FormatTokens(result.Usage.TotalTokens),
		usage.FormatCost(result.Usage.Cost),
		result.Duration.Round(time.Millisecond),
	)
	if denied := deniedCount(result.ToolCalls); denied > 0 {
		fmt.Fprintf(&b, "  denied: %d", denied)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), b.String())
}

// resultError maps the run outcome to an exit code. Mid-run tool
// denials do not fail a completed run; they only show in the summary.
func resultError(result agent.Result) error {
	switch result.Status {
	case agent.StatusCompleted:
		return nil
	case agent.StatusTurnLimit:
		return &ExitError{Code: ExitTurnLimit, Err: fmt.Errorf("%s", result.FailureReason)}
	case agent.StatusTimedOut:
		return &ExitError{Code: ExitTimeout, Err: fmt.Errorf("%s", result.FailureReason)}
	default:
		return &ExitError{Code: ExitExecutionError, Err: fmt.Errorf("%s", result.FailureReason)}
	}
}

func deniedCount(calls []agent.ToolCallRecord) int {
	denied := 0
	for _, call := range calls {
		if call.Denied {
			denied++
		}
	}
	return denied
}

func wrapConfigError(err error) error {
	var cfgErr *provider.ConfigError
	if errors.As(err, &cfgErr) {
		return &ExitError{Code: ExitConfigError, Err: err}
	}
	return err
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}
