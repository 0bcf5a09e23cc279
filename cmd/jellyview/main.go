// Command jellyview is a diagnostic front-end for the image asset subsystem:
// it resolves, fetches, and caches artwork for media items and shows how each
// request progressed through its candidate fallback chain.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/term"

	"github.com/rpeters1430/Jellyfin-New-sub000/internal/assets"
	"github.com/rpeters1430/Jellyfin-New-sub000/internal/cache"
	"github.com/rpeters1430/Jellyfin-New-sub000/internal/config"
	"github.com/rpeters1430/Jellyfin-New-sub000/internal/log"
	"github.com/rpeters1430/Jellyfin-New-sub000/internal/mediaserver"
	"github.com/rpeters1430/Jellyfin-New-sub000/internal/memmon"
	"github.com/rpeters1430/Jellyfin-New-sub000/internal/tui"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	keyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

const usage = `jellyview - Jellyfin artwork loader diagnostics

Usage:
  jellyview probe --item ID [--item ID ...] [--role ROLE] [--timeout DUR]
  jellyview watch --item ID [--item ID ...] [--role ROLE]
  jellyview cache list [--filter TEXT]
  jellyview cache trim [--target BYTES]
  jellyview cache clear
  jellyview version

Roles: poster, backdrop, thumbnail, square, episode, library_tile
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "probe":
		err = runProbe(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "cache":
		err = runCache(os.Args[2:])
	case "version", "-v", "--version":
		fmt.Printf("jellyview %s\n", Version)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the explicitly wired subsystem: no global singletons, every
// component receives its collaborators at construction.
type app struct {
	cfg     *config.Config
	store   *cache.Store
	client  mediaserver.ImageSource
	loader  *assets.Loader
	monitor *memmon.Monitor
}

func (a *app) close() {
	a.monitor.Stop()
	a.store.Close()
}

func setup(verbose, needServer bool) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		logger = log.NullLogger()
	}
	if verbose {
		logger = log.ConsoleLogger("DEBUG")
	}

	a := &app{cfg: cfg}

	budget := memoryBudget(cfg.Assets.MemoryBudgetPercent)
	a.store, err = cache.NewStore(cfg.Assets.CacheDir, budget, cfg.Assets.DiskBudgetBytes, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	a.monitor = memmon.NewMonitor(logger,
		memmon.WithInterval(time.Duration(cfg.Assets.SampleIntervalSec)*time.Second),
		memmon.WithThresholds(cfg.Assets.LowMemoryThresholdMB, cfg.Assets.CriticalMemoryThresholdMB),
	)
	store := a.store
	a.monitor.RegisterCleanup(func(level memmon.Level) {
		switch level {
		case memmon.LevelCritical:
			store.FlushMemory()
		case memmon.LevelLow:
			store.TrimMemory(store.MemoryBudget() / 2)
		}
	})
	a.monitor.Start()

	if !needServer {
		return a, nil
	}

	if cfg.Server.URL == "" {
		a.close()
		return nil, errors.New("no server configured: set server.url in the config file or JELLYVIEW_SERVER_URL")
	}
	if cfg.Server.Token == "" {
		token, err := promptToken()
		if err != nil {
			a.close()
			return nil, err
		}
		cfg.Server.Token = token
		if err := config.SaveToken(token); err != nil {
			logger.Warn("failed to persist token", "error", err)
		}
	}

	a.client, err = mediaserver.NewClient(cfg, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create media client: %w", err)
	}

	resolver, err := buildResolver(&cfg.Assets)
	if err != nil {
		a.close()
		return nil, err
	}

	a.loader = assets.NewLoader(resolver, a.client, a.store, a.client, assets.Options{
		MaxRetries: cfg.Assets.MaxRetries,
		Backoff:    time.Duration(cfg.Assets.BackoffMS) * time.Millisecond,
	}, logger)

	return a, nil
}

// memoryBudget sizes the memory tier as a percentage of currently available
// system memory, with a floor so the cache stays useful on constrained
// readings.
func memoryBudget(percent int) int64 {
	if percent <= 0 || percent > 100 {
		percent = 25
	}
	avail := memmon.AvailableBytes()
	budget := int64(avail) * int64(percent) / 100
	if budget < 32<<20 {
		budget = 32 << 20
	}
	return budget
}

// buildResolver applies configured per-role fallback chains on top of the
// built-in table.
func buildResolver(cfg *config.AssetsConfig) (*assets.Resolver, error) {
	opts := []assets.ResolverOption{assets.WithQuality(cfg.Quality)}
	for roleName, specs := range cfg.Roles {
		role, err := assets.ParseRole(roleName)
		if err != nil {
			return nil, fmt.Errorf("assets.roles: %w", err)
		}
		chain := make([]assets.CandidateSpec, 0, len(specs))
		for _, s := range specs {
			spec, err := assets.ParseCandidateSpec(s)
			if err != nil {
				return nil, fmt.Errorf("assets.roles.%s: %w", roleName, err)
			}
			chain = append(chain, spec)
		}
		opts = append(opts, assets.WithRolePolicy(role, chain))
	}
	return assets.NewResolver(opts...), nil
}

func promptToken() (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", errors.New("no access token configured: set server.token or JELLYVIEW_SERVER_TOKEN")
	}
	fmt.Fprint(os.Stderr, "Jellyfin API key: ")
	tokenBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(string(tokenBytes))
	if token == "" {
		return "", errors.New("empty token")
	}
	return token, nil
}

// itemFlags collects repeatable --item flags.
type itemFlags []string

func (f *itemFlags) String() string { return strings.Join(*f, ",") }

func (f *itemFlags) Set(v string) error {
	if v == "" {
		return errors.New("empty item id")
	}
	*f = append(*f, v)
	return nil
}

func parseRequests(items []string, roleName string) ([]assets.Request, error) {
	if len(items) == 0 {
		return nil, errors.New("at least one --item is required")
	}
	role, err := assets.ParseRole(roleName)
	if err != nil {
		return nil, err
	}
	reqs := make([]assets.Request, 0, len(items))
	for _, id := range items {
		reqs = append(reqs, assets.Request{ItemID: id, Role: role})
	}
	return reqs, nil
}

func runProbe(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	var items itemFlags
	fs.Var(&items, "item", "item ID (repeatable)")
	role := fs.String("role", "poster", "asset role")
	timeout := fs.Duration("timeout", 60*time.Second, "overall deadline")
	verbose := fs.Bool("verbose", false, "debug logging to stderr")
	fs.Parse(args)

	reqs, err := parseRequests(items, *role)
	if err != nil {
		return err
	}

	a, err := setup(*verbose, true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	handles := make([]*assets.Handle, len(reqs))
	for i, req := range reqs {
		handles[i] = a.loader.Load(ctx, req)
	}

	failed := 0
	for i, h := range handles {
		snap := h.Wait(ctx)
		printResult(reqs[i], snap)
		if snap.Phase != assets.PhaseSuccess {
			failed++
		}
	}

	printStats(a.store.Stats())
	if failed > 0 {
		return fmt.Errorf("%d of %d assets failed", failed, len(handles))
	}
	return nil
}

func printResult(req assets.Request, snap assets.Snapshot) {
	name := keyStyle.Render(fmt.Sprintf("%-14s %-24s", req.Role, req.ItemID))
	switch snap.Phase {
	case assets.PhaseSuccess:
		fmt.Printf("  %s %s\n", name, okStyle.Render(fmt.Sprintf(
			"ok  %dx%d  %d bytes  candidate %d",
			snap.Width, snap.Height, len(snap.Payload), snap.CandidateIndex+1)))
	case assets.PhaseExhausted:
		fmt.Printf("  %s %s\n", name, failStyle.Render(fmt.Sprintf(
			"failed  %s  (last: %v)", assets.ClassifyFailure(snap.Err), snap.Err)))
	default:
		fmt.Printf("  %s %s\n", name, dimStyle.Render("timed out in phase "+snap.Phase.String()))
	}
}

func printStats(stats cache.Stats) {
	fmt.Printf("\n%s\n", dimStyle.Render(fmt.Sprintf(
		"cache: memory %d entries / %d bytes, disk %d entries / %d bytes, %d hits, %d misses",
		stats.MemoryEntries, stats.MemoryBytes,
		stats.DiskEntries, stats.DiskBytes,
		stats.Hits, stats.Misses)))
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	var items itemFlags
	fs.Var(&items, "item", "item ID (repeatable)")
	role := fs.String("role", "poster", "asset role")
	fs.Parse(args)

	reqs, err := parseRequests(items, *role)
	if err != nil {
		return err
	}

	a, err := setup(false, true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := tui.NewModel(ctx, a.loader, reqs)
	_, err = tea.NewProgram(model).Run()
	return err
}

func runCache(args []string) error {
	if len(args) < 1 {
		return errors.New("cache: want list, trim, or clear")
	}

	a, err := setup(false, false)
	if err != nil {
		return err
	}
	defer a.close()

	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("cache list", flag.ExitOnError)
		filter := fs.String("filter", "", "fuzzy key filter")
		fs.Parse(args[1:])
		return cacheList(a.store, *filter)

	case "trim":
		fs := flag.NewFlagSet("cache trim", flag.ExitOnError)
		target := fs.Int64("target", a.cfg.Assets.DiskBudgetBytes, "disk budget in bytes")
		fs.Parse(args[1:])
		a.store.FlushMemory()
		a.store.TrimDisk(*target)
		printStats(a.store.Stats())
		return nil

	case "clear":
		a.store.Clear()
		fmt.Println("cache cleared")
		return nil

	default:
		return fmt.Errorf("cache: unknown subcommand %q", args[0])
	}
}

func cacheList(store *cache.Store, filter string) error {
	entries := store.List()
	shown := 0
	for _, e := range entries {
		if filter != "" && !fuzzy.MatchFold(filter, e.Key) {
			continue
		}
		shown++
		fmt.Printf("  %s %8d  %s  %s\n",
			keyStyle.Render(fmt.Sprintf("%-6s", e.Tier)),
			e.Size,
			dimStyle.Render(e.LastAccess.Format(time.RFC3339)),
			e.Key,
		)
	}
	fmt.Printf("%s\n", dimStyle.Render(fmt.Sprintf("%d of %d entries", shown, len(entries))))
	return nil
}
