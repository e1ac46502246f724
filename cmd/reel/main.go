package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/reel/internal/catalog"
	"github.com/mmcdole/reel/internal/config"
	"github.com/mmcdole/reel/internal/domain"
	"github.com/mmcdole/reel/internal/history"
	"github.com/mmcdole/reel/internal/log"
	"github.com/mmcdole/reel/internal/mirror"
	"github.com/mmcdole/reel/internal/player"
	"github.com/mmcdole/reel/internal/poster"
	"github.com/mmcdole/reel/internal/recommend"
	"github.com/mmcdole/reel/internal/search"
	"github.com/mmcdole/reel/internal/service"
	"github.com/mmcdole/reel/internal/store"
	"github.com/mmcdole/reel/internal/tui"
	"github.com/mmcdole/reel/internal/tui/styles"
	"github.com/spf13/afero"
	"golang.org/x/term"
)

// Version is set at build time via -ldflags
var Version = "dev"

// clearSpinnerLine clears the spinner line from the terminal
const clearSpinnerLine = "\r                                                  \r"

const usage = `usage: reel [flags] [command]

commands:
  search [-year YYYY] <query>   search the catalog
  picks                         show recommendations
  history                       show watch history
  play <link> [title]           open a link in the external player
  update-db                     check for and download catalog updates

Without a command reel starts the interactive browser.
`

func main() {
	// Handle version flag
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if showVersion {
		fmt.Printf("reel %s\n", Version)
		return
	}

	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the wired core and the resources it must release.
type app struct {
	svc     *service.Service
	catalog *catalog.Store
	state   *store.StateStore
	logger  *slog.Logger
}

func (a *app) Close() {
	a.svc.Close()
	if err := a.catalog.Close(); err != nil {
		a.logger.Warn("failed to close catalog", "error", err)
	}
	if err := a.state.Close(); err != nil {
		a.logger.Warn("failed to close state store", "error", err)
	}
}

func run(args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting reel", "version", Version)

	a := wire(cfg, logger)
	defer a.Close()

	if len(args) == 0 {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			flag.Usage()
			return errors.New("no command given and stdout is not a terminal")
		}
		return runTUI(a, logger)
	}

	ctx := context.Background()
	switch args[0] {
	case "search":
		return runSearch(ctx, a, args[1:])
	case "picks":
		return runPicks(ctx, a)
	case "history":
		return runHistory(a)
	case "play":
		return runPlay(a, args[1:])
	case "update-db":
		return runUpdate(ctx, a)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// wire builds every component of the core from the configuration.
func wire(cfg *config.Config, logger *slog.Logger) *app {
	state := store.NewStateStore(cfg.StatePath(), logger)

	catalogStore := catalog.Open(cfg.CatalogPath(), logger)
	downloader := catalog.NewDownloader(afero.NewOsFs(), nil, logger)
	versionClient := &http.Client{Timeout: 15 * time.Second}

	matcher := search.NewMatcher(catalogStore, logger)
	resolver := mirror.NewResolver(cfg.Mirrors.List, mirror.NewHTTPProber(cfg.Mirrors.ProbeTimeout), nil, logger)

	var searcher domain.PosterSearcher
	if strings.TrimSpace(cfg.Posters.APIKey) != "" {
		searcher = poster.NewOMDbClient(cfg.Posters.APIKey, cfg.Posters.Endpoint, cfg.Posters.RatePerSecond, logger)
	}
	files := poster.NewFileCache(afero.NewOsFs(), cfg.PosterDir(), logger)
	posters := poster.NewChain(poster.ChainConfig{
		Cache:        poster.NewCache(state, logger),
		Catalog:      catalogStore,
		Searcher:     searcher,
		Mirrors:      resolver,
		Files:        files,
		Logger:       logger,
		TrustedHosts: cfg.Posters.TrustedHosts,
		KnownMirrors: cfg.Mirrors.List,
	})

	var recommender domain.Recommender
	if cfg.HasAI() {
		recommender = recommend.NewGeminiClient(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Endpoint, cfg.AI.Timeout, logger)
	}
	engine := recommend.NewEngine(recommend.EngineConfig{
		Recommender: recommender,
		Reconciler:  recommend.NewReconciler(matcher, logger),
		Catalog:     catalogStore,
		Store:       state,
		Logger:      logger,
	})

	// Create launcher (uses configured player or auto-detects)
	launcher := player.NewLauncher(cfg.Player.Command, cfg.Player.Args, cfg.Player.StartFlag, logger)

	svc := service.New(service.Config{
		Catalog:    catalogStore,
		Downloader: downloader,
		Versions:   state,
		RemoteVersion: func(ctx context.Context) (string, error) {
			return catalog.FetchRemoteVersion(ctx, versionClient, cfg.Catalog.VersionURL)
		},
		CatalogURL:  cfg.Catalog.DBURL,
		Matcher:     matcher,
		Mirrors:     resolver,
		Posters:     posters,
		PosterFiles: files,
		Picks:       engine,
		History:     history.New(state, logger),
		Launcher:    launcher,
		Logger:      logger,
	})

	return &app{svc: svc, catalog: catalogStore, state: state, logger: logger}
}

func runTUI(a *app, logger *slog.Logger) error {
	go func() {
		if err := a.svc.Start(context.Background()); err != nil {
			logger.Warn("startup finished with catalog error", "error", err)
		}
	}()

	p := tea.NewProgram(
		tui.NewModel(a.svc),
		tea.WithAltScreen(),
	)

	logger.Info("starting TUI")

	if _, err := p.Run(); err != nil {
		logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	logger.Info("shutting down")
	return nil
}

// start brings the core up behind a spinner that shows catalog progress.
func start(ctx context.Context, a *app) error {
	views, unsubscribe := a.svc.Subscribe()
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- a.svc.Start(ctx) }()

	label := "Starting..."
	frame := 0
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			fmt.Print(clearSpinnerLine)
			return err
		case v, ok := <-views:
			if !ok {
				views = nil
				continue
			}
			switch {
			case v.CatalogProgress != "":
				label = v.CatalogProgress
			case v.Mirrors.Total > 0 && !v.Mirrors.Done:
				label = fmt.Sprintf("Checking servers %d/%d...", v.Mirrors.Checked, v.Mirrors.Total)
			}
		case <-ticker.C:
			frame++
			fmt.Printf("\r%s %s", styles.SpinnerFrames[frame%len(styles.SpinnerFrames)], styles.Truncate(label, 46))
		}
	}
}

func runSearch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	year := fs.String("year", "", "only match this release year")
	if err := fs.Parse(args); err != nil {
		return err
	}
	query := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("search needs a query")
	}

	if err := start(ctx, a); err != nil && !a.svc.Snapshot().CatalogReady {
		return err
	}

	items, err := a.svc.Search(ctx, query, *year)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No results found.")
		if s := a.svc.Snapshot().Suggestions; len(s) > 0 {
			fmt.Printf("Did you mean: %s?\n", strings.Join(s, ", "))
		}
		return nil
	}
	printItems(items)
	return nil
}

func runPicks(ctx context.Context, a *app) error {
	if err := start(ctx, a); err != nil && !a.svc.Snapshot().CatalogReady {
		return err
	}

	views, unsubscribe := a.svc.Subscribe()
	v := <-views
	for v.PicksLoading {
		next, ok := <-views
		if !ok {
			break
		}
		v = next
	}
	unsubscribe()

	if v.PicksStatus != "" {
		fmt.Println(styles.DimStyle.Render(v.PicksStatus))
	}
	if len(v.Picks) == 0 {
		fmt.Println("No picks yet.")
		return nil
	}
	printItems(v.Picks)
	return nil
}

func runHistory(a *app) error {
	entries := a.svc.Snapshot().History
	if len(entries) == 0 {
		fmt.Println("Nothing watched yet.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %s\n", styles.TitleStyle.Render(e.Name), styles.DimStyle.Render(e.Info))
		fmt.Printf("  %s\n", e.Link)
	}
	return nil
}

func runPlay(a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("play needs a link")
	}
	title := strings.Join(args[1:], " ")
	if err := a.svc.OpenExternal(args[0], title); err != nil {
		return err
	}
	fmt.Println(styles.SuccessStyle.Render("✓ Player started"))
	return nil
}

func runUpdate(ctx context.Context, a *app) error {
	if err := start(ctx, a); err != nil {
		return err
	}
	v := a.svc.Snapshot()
	if v.Status != "" {
		fmt.Println(v.Status)
	} else {
		fmt.Println("Database is up to date.")
	}
	return nil
}

func printItems(items []service.Item) {
	for i, it := range items {
		fmt.Printf("%2d. %s\n", i+1, styles.TitleStyle.Render(it.Title))
		fmt.Printf("    %s\n", it.Link)
	}
}
