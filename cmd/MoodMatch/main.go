package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/BTreeMap/MoodMatch/internal/config"
	"github.com/BTreeMap/MoodMatch/internal/flow"
	"github.com/BTreeMap/MoodMatch/internal/genai"
	"github.com/BTreeMap/MoodMatch/internal/lockfile"
	"github.com/BTreeMap/MoodMatch/internal/models"
	"github.com/BTreeMap/MoodMatch/internal/moodapi"
	"github.com/BTreeMap/MoodMatch/internal/resources"
	"github.com/BTreeMap/MoodMatch/internal/store"
	"github.com/BTreeMap/MoodMatch/internal/view"
)

// Process exit codes.
const (
	exitOK           = 0
	exitError        = 1
	exitInvalidInput = 2
	exitCancelled    = 130
)

const usage = `Usage: MoodMatch [command] [flags]

Commands:
  submit     share how you feel and get matched with a peer (default)
  health     check that the MoodMatch backend is reachable
  history    list your recent submissions (no mood text is stored)
  resources  list crisis and support contacts

Run "MoodMatch <command> -h" for the flags of a command.
`

const moodPrompt = "How are you feeling today? Share what's on your mind."

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Flags holds command line flag values.
type Flags struct {
	apiURL    *string
	userID    *string
	analyzer  *string
	policy    *string
	stateDir  *string
	dbDSN     *string
	openaiKey *string
	debug     *bool

	mood    *string
	context *string
	limit   *int
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	initializeLogger(stderr, slog.LevelInfo)

	cmd, rest := splitCommand(args)
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		fmt.Fprint(stdout, usage)
		return exitOK
	}
	if cmd == "resources" {
		view.Resources(stdout, resources.Crisis())
		return exitOK
	}

	cfg, err := loadEnvironmentConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalidInput
	}

	flags, err := parseCommandLineFlags(cmd, rest, cfg, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitInvalidInput
	}
	if err := applyFlags(cfg, flags); err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalidInput
	}

	level := config.ParseLogLevel(cfg.LogLevel)
	if *flags.debug {
		level = slog.LevelDebug
	}
	initializeLogger(stderr, level)
	slog.Debug("Final configuration", "command", cmd, "api_url", cfg.APIURL, "state_dir", cfg.StateDir, "dsn_set", cfg.DBDSN != "")

	switch cmd {
	case "submit":
		return runSubmit(ctx, cfg, flags, stdin, stdout, stderr)
	case "health":
		return runHealth(ctx, cfg, stdout)
	case "history":
		return runHistory(ctx, cfg, *flags.limit, stdout, stderr)
	}
	fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
	return exitInvalidInput
}

// splitCommand separates the subcommand from its flags. Without a command, submit is assumed.
func splitCommand(args []string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") && args[0] != "-h" && args[0] != "--help" {
		return "submit", args
	}
	return args[0], args[1:]
}

// initializeLogger sets up structured logging on w at the given level.
func initializeLogger(w io.Writer, level slog.Level) {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() (*config.Config, error) {
	return config.Load()
}

// parseCommandLineFlags parses the flags of cmd with environment defaults.
func parseCommandLineFlags(cmd string, args []string, cfg *config.Config, stderr io.Writer) (Flags, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)

	flags := Flags{
		apiURL:    fs.String("api-url", cfg.APIURL, "MoodMatch backend URL (overrides $MOODMATCH_API_URL)"),
		userID:    fs.String("user", cfg.UserID, "student id to submit as (overrides $MOODMATCH_USER_ID)"),
		analyzer:  fs.String("analyzer", cfg.Analyzer, "mood analyzer: api or openai (overrides $MOODMATCH_ANALYZER)"),
		policy:    fs.String("policy", cfg.AnimationPolicy, "animation policy: sequential or concurrent (overrides $MOODMATCH_ANIMATION_POLICY)"),
		stateDir:  fs.String("state-dir", cfg.StateDir, "state directory for the lock file and journal (overrides $MOODMATCH_STATE_DIR)"),
		dbDSN:     fs.String("db-dsn", cfg.DBDSN, "journal DSN: SQLite path, postgres:// URL or memory (overrides $MOODMATCH_DB_DSN)"),
		openaiKey: fs.String("openai-api-key", cfg.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		debug:     fs.Bool("debug", false, "enable debug logging"),
		mood:      new(string),
		context:   new(string),
		limit:     new(int),
	}
	switch cmd {
	case "submit":
		flags.mood = fs.String("mood", "", "how you are feeling; prompted for when empty")
		flags.context = fs.String("context", "", "optional context, for example \"finals week\"")
	case "history":
		flags.limit = fs.Int("limit", store.DefaultHistoryLimit, "number of submissions to list")
	}

	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	if fs.NArg() > 0 {
		return flags, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	// Follow the state directory when the DSN was only its default.
	if *flags.dbDSN == cfg.DBDSN && cfg.DBDSN == filepath.Join(cfg.StateDir, config.DefaultDBFileName) && *flags.stateDir != cfg.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, config.DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "state_dir", *flags.stateDir)
	}
	return flags, nil
}

// applyFlags copies flag overrides into cfg and validates the result.
func applyFlags(cfg *config.Config, flags Flags) error {
	cfg.APIURL = *flags.apiURL
	cfg.UserID = *flags.userID
	cfg.Analyzer = strings.ToLower(strings.TrimSpace(*flags.analyzer))
	cfg.AnimationPolicy = strings.ToLower(strings.TrimSpace(*flags.policy))
	cfg.StateDir = *flags.stateDir
	cfg.DBDSN = *flags.dbDSN
	cfg.OpenAIKey = *flags.openaiKey
	return cfg.Validate()
}

// buildMoodAPIOptions constructs backend client options.
func buildMoodAPIOptions(cfg *config.Config) []moodapi.Option {
	return []moodapi.Option{moodapi.WithBaseURL(cfg.APIURL)}
}

// buildGenAIOptions constructs GenAI configuration options.
func buildGenAIOptions(cfg *config.Config) []genai.Option {
	opts := []genai.Option{genai.WithModel(cfg.OpenAIModel)}
	if cfg.OpenAIKey != "" {
		opts = append(opts, genai.WithAPIKey(cfg.OpenAIKey))
	}
	return opts
}

// buildAnalyzer picks the analyzer; matching always goes to the backend.
func buildAnalyzer(cfg *config.Config, api *moodapi.Client) (flow.Analyzer, error) {
	if cfg.Analyzer != config.AnalyzerOpenAI {
		return api, nil
	}
	client, err := genai.NewClient(buildGenAIOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	slog.Debug("Using direct OpenAI mood analyzer", "model", cfg.OpenAIModel)
	return genai.NewMoodAnalyzer(client), nil
}

// buildFlowOptions constructs controller options.
func buildFlowOptions(cfg *config.Config, journal store.Store, stdout io.Writer) ([]flow.Option, error) {
	policy, err := flow.ParsePolicy(cfg.AnimationPolicy)
	if err != nil {
		return nil, err
	}
	steps := models.DefaultSteps()
	opts := []flow.Option{
		flow.WithPolicy(policy),
		flow.WithSteps(steps),
		flow.WithStepInterval(cfg.StepInterval),
		flow.WithRequestTimeout(cfg.RequestTimeout),
		flow.WithObserver(view.NewProgressObserver(stdout, len(steps))),
	}
	if journal != nil {
		opts = append(opts, flow.WithJournal(journal))
	}
	return opts, nil
}

func runSubmit(ctx context.Context, cfg *config.Config, flags Flags, stdin io.Reader, stdout, stderr io.Writer) int {
	text := *flags.mood
	if strings.TrimSpace(text) == "" {
		var err error
		text, err = promptMood(bufio.NewReader(stdin), stdout)
		if err != nil && !errors.Is(err, io.EOF) {
			slog.Error("Failed to read mood text", "error", err)
			view.Error(stdout)
			return exitError
		}
	}

	lock, err := lockfile.AcquireLock(cfg.StateDir)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	defer lock.Release()

	journal, err := store.Open(ctx, cfg.DBDSN)
	if err != nil {
		slog.Warn("Outcome journal unavailable, continuing without it", "error", err)
	} else {
		defer journal.Close()
	}

	api := moodapi.NewClient(buildMoodAPIOptions(cfg)...)
	analyzer, err := buildAnalyzer(cfg, api)
	if err != nil {
		slog.Error("Failed to build analyzer", "error", err)
		view.Error(stdout)
		return exitError
	}
	opts, err := buildFlowOptions(cfg, journal, stdout)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalidInput
	}

	sub := models.NewMoodSubmission(cfg.UserID, text)
	sub.Context = strings.TrimSpace(*flags.context)

	ctrl := flow.NewController(analyzer, api, opts...)
	out, err := ctrl.Run(ctx, sub)
	fmt.Fprintln(stdout)
	return render(stdout, out, err)
}

// render shows the outcome and returns the exit code for it.
func render(w io.Writer, out flow.Outcome, err error) int {
	switch out.Destination {
	case models.DestinationResult:
		view.Result(w, *out.Result)
		return exitOK
	case models.DestinationCrisis:
		view.Crisis(w, *out.Crisis, view.IsTerminal(w))
		return exitOK
	case models.DestinationCancelled:
		view.Cancelled(w)
		return exitCancelled
	}
	view.Error(w)
	if errors.Is(err, models.ErrInvalidInput) {
		return exitInvalidInput
	}
	return exitError
}

// promptMood prints the prompt to w and reads one line from reader. A partial line
// before EOF is returned.
func promptMood(reader *bufio.Reader, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, moodPrompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func runHealth(ctx context.Context, cfg *config.Config, stdout io.Writer) int {
	api := moodapi.NewClient(buildMoodAPIOptions(cfg)...)
	hctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	status, err := api.Health(hctx)
	if err != nil {
		slog.Error("Backend health check failed", "url", api.BaseURL(), "error", err)
		view.Error(stdout)
		return exitError
	}
	fmt.Fprintf(stdout, "Backend %s: %s\n", api.BaseURL(), status.Status)
	return exitOK
}

func runHistory(ctx context.Context, cfg *config.Config, limit int, stdout, stderr io.Writer) int {
	journal, err := store.Open(ctx, cfg.DBDSN)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	defer journal.Close()

	records, err := journal.ListOutcomes(ctx, limit)
	if err != nil {
		slog.Error("Failed to list outcomes", "error", err)
		view.Error(stdout)
		return exitError
	}
	view.History(stdout, records)
	return exitOK
}
