package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mirrorstore/objsync/internal/config"
	"github.com/mirrorstore/objsync/internal/statusd"
	"github.com/mirrorstore/objsync/pkg/history"
	"github.com/mirrorstore/objsync/pkg/lock"
	"github.com/mirrorstore/objsync/pkg/pull"
	"github.com/mirrorstore/objsync/pkg/remote"
	"github.com/mirrorstore/objsync/pkg/store"
)

// pullOpts holds the command-line flags for the pull command.
type pullOpts struct {
	storeDir    string
	configPath  string
	related     bool
	workers     int
	lockBackend string
	redisAddr   string
	historyURI  string
	historyDB   string
	statusAddr  string
}

// pullCommand builds the "pull" subcommand: mirror a remote's object
// closure for one or more branches/checksums into a local store.
func (c *CLI) pullCommand() *cobra.Command {
	opts := pullOpts{storeDir: ".objsync", workers: 0, lockBackend: "memory", historyDB: "objsync"}

	cmd := &cobra.Command{
		Use:   "pull REMOTE [ROOT...]",
		Short: "Pull a remote's object closure into the local store",
		Long: `pull resolves each ROOT (a configured branch name, or a raw checksum)
against a remote's refs, then walks and fetches every object reachable from
it that the local store doesn't already have, committing the result
transactionally. With no ROOT arguments, the remote's configured branch
list is used instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPull(cmd.Context(), args[0], args[1:], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.storeDir, "store", opts.storeDir, "local store directory")
	flags.StringVar(&opts.configPath, "config", "", "path to the remotes TOML config (default: <store>/config.toml)")
	flags.BoolVar(&opts.related, "related", false, "also walk commits' related-commit field")
	flags.IntVar(&opts.workers, "workers", opts.workers, "fetch worker concurrency (0 selects the fetcher's default)")
	flags.StringVar(&opts.lockBackend, "lock-backend", opts.lockBackend, "pull lock backend: memory, file, or redis")
	flags.StringVar(&opts.redisAddr, "redis-addr", "", "redis address, required when --lock-backend=redis")
	flags.StringVar(&opts.historyURI, "history-uri", "", "MongoDB URI to record pull history to (disabled if empty)")
	flags.StringVar(&opts.historyDB, "history-db", opts.historyDB, "MongoDB database name for pull history")
	flags.StringVar(&opts.statusAddr, "status-addr", "", "address to serve live pull status on, e.g. :8080 (disabled if empty)")

	return cmd
}

func (c *CLI) runPull(ctx context.Context, remoteURL string, roots []string, opts pullOpts) error {
	s, err := store.NewFileStore(opts.storeDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	configPath := opts.configPath
	if configPath == "" {
		configPath = filepath.Join(opts.storeDir, "config.toml")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	remoteName := remoteURL
	url := remoteURL
	branches := roots
	if rc, ok := cfg.Lookup(remoteURL); ok {
		url = rc.URL
		if len(branches) == 0 {
			branches = rc.Branches
		}
	}

	locker, err := opts.newLocker()
	if err != nil {
		return fmt.Errorf("build lock backend: %w", err)
	}

	recorder, err := opts.newRecorder(ctx)
	if err != nil {
		return fmt.Errorf("build history recorder: %w", err)
	}

	status := pull.NewStatus()
	if opts.statusAddr != "" {
		go func() {
			if err := statusd.ListenAndServe(opts.statusAddr, status); err != nil {
				c.Logger.Warnf("status server stopped: %v", err)
			}
		}()
		c.Logger.Infof("status server listening on %s", opts.statusAddr)
	}

	c.Logger.Infof("pulling %s from %s", remoteName, url)
	start := time.Now()

	res, err := pull.Run(ctx, s, remote.NewClient(url), pull.Options{
		Remote:             remoteName,
		Roots:              branches,
		Related:            opts.related,
		ConfiguredBranches: branches,
		FetchWorkers:       opts.workers,
		Locker:             locker,
		Recorder:           recorder,
		Status:             status,
	})
	if err != nil {
		return err
	}

	c.Logger.Infof("pull complete: %d refs updated, %d unchanged, %d metadata + %d content objects fetched (%s)",
		len(res.UpdatedRefs), len(res.UnchangedRefs), res.NFetchedMeta, res.NFetchedContent, time.Since(start).Round(time.Millisecond))
	for branch, csum := range res.UpdatedRefs {
		c.Logger.Infof("  %s -> %s", branch, csum)
	}
	for _, branch := range res.UnchangedRefs {
		c.Logger.Infof("No changes in %s/%s", remoteName, branch)
	}
	return nil
}

func (o pullOpts) newLocker() (lock.Locker, error) {
	switch o.lockBackend {
	case "", "memory":
		return lock.NewMemoryLocker(), nil
	case "file":
		return lock.NewFileLocker(filepath.Join(o.storeDir, "locks"))
	case "redis":
		if o.redisAddr == "" {
			return nil, fmt.Errorf("--redis-addr is required for --lock-backend=redis")
		}
		client := redis.NewClient(&redis.Options{Addr: o.redisAddr})
		return lock.NewRedisLocker(client, ""), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", o.lockBackend)
	}
}

func (o pullOpts) newRecorder(ctx context.Context) (history.Recorder, error) {
	if o.historyURI == "" {
		return history.NoopRecorder{}, nil
	}
	return history.NewMongoRecorder(ctx, o.historyURI, o.historyDB)
}
