// Command scmcored is the server harness that wires the synced-commit
// mapping store, the bookmarks store, the hook manager and the blob
// store together and serves the getfiles slice of the
// Mercurial wire surface named in spec.md §6. Its flag handling, logging
// and profiling setup follow the teacher's main.go almost exactly —
// kingpin for flags, logrus for logging, pkg/profile behind a flag,
// p4prometheus/version for the version banner — generalized from a
// one-shot git-fast-export converter into a long-running server.
package main

import (
	"context"
	_ "net/http/pprof" // profiling only
	"os"
	"os/signal"
	"regexp"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/perforce/p4prometheus/version"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/rivermark/scmcore/bookmarks"
	"github.com/rivermark/scmcore/commitsync"
	"github.com/rivermark/scmcore/config"
	"github.com/rivermark/scmcore/hgwire"
	"github.com/rivermark/scmcore/hooks"
	"github.com/rivermark/scmcore/internal/blobstore"
	"github.com/rivermark/scmcore/internal/rewritegraph"
	"github.com/rivermark/scmcore/internal/sqlstore"
	"github.com/rivermark/scmcore/journal"
	"github.com/rivermark/scmcore/scmtypes"
)

const coalesceWindow = 5 * time.Millisecond

// maxUnLfsedBinaryBytes is the size threshold above which binary content
// not already marked git-lfs is rejected by the built-in oversized-binary
// hook.
const maxUnLfsedBinaryBytes = 10 << 20

func main() {
	var (
		configFile = kingpin.Flag(
			"config",
			"Config file for scmcored.",
		).Default("scmcored.yaml").Short('c').String()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Default("0").Int()
		profileMode = kingpin.Flag(
			"profile",
			"Enable profiling: one of cpu, mem, block (default none).",
		).String()
		journalPath = kingpin.Flag(
			"journal",
			"Audit journal file to append bookmark-move/mapping-insert records to.",
		).Default("scmcored.journal").String()
		mappingGraphFile = kingpin.Flag(
			"mapping-graph",
			"If set, look up --mapping-graph-ids in the mapping store and write the result as a graphviz dot file.",
		).String()
		mappingGraphIds = kingpin.Flag(
			"mapping-graph-ids",
			"Comma-separated large-repo changeset ids (hex) to resolve and render with --mapping-graph.",
		).String()
		getfiles = kingpin.Flag(
			"getfiles",
			"Serve a single getfiles request framed on stdin and exit, instead of starting the server loop.",
		).Bool()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("scmcored")).Author("Rivermark")
	kingpin.CommandLine.Help = "Serves the synced-commit mapping, bookmarks and hook subsystems behind a minimal Mercurial wire surface\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}
	log := logrus.NewEntry(logger)

	if stopper := startProfile(*profileMode); stopper != nil {
		defer stopper.Stop()
	}

	startTime := time.Now()
	logger.Infof("%v", version.Print("scmcored"))
	logger.Infof("Starting %s, config: %v", startTime, *configFile)
	logger.Infof("OS: %s/%s", runtime.GOOS, runtime.GOARCH)

	cfg, err := config.LoadConfigFile(*configFile)
	if err != nil {
		logger.Errorf("error loading config file: %v", err)
		os.Exit(1)
	}
	logger.Infof("Loaded config: large_repo=%d small_repo=%d sync_map_version=%s",
		cfg.LargeRepoID, cfg.SmallRepoID, cfg.SyncMapVersion)

	if *getfiles {
		requests, err := hgwire.ParseGetFilesArgs(os.Stdin)
		if err != nil {
			logger.Errorf("getfiles: %v", err)
			os.Exit(1)
		}
		logger.Infof("getfiles: parsed %d requests", len(requests))
		if err := hgwire.WriteGetFilesArgs(os.Stdout, requests); err != nil {
			logger.Errorf("getfiles: writing response: %v", err)
			os.Exit(1)
		}
		return
	}

	roles, err := openRoles(cfg)
	if err != nil {
		logger.Errorf("error opening SQL roles: %v", err)
		os.Exit(1)
	}
	defer roles.Close()

	mapping := commitsync.NewMapping(roles, log, coalesceWindow)
	bookmarkStore := bookmarks.NewStore(roles, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mapping.EnsureSchema(ctx); err != nil {
		logger.Errorf("error ensuring mapping schema: %v", err)
		os.Exit(1)
	}
	if err := bookmarkStore.EnsureSchema(ctx); err != nil {
		logger.Errorf("error ensuring bookmarks schema: %v", err)
		os.Exit(1)
	}

	blobs := blobstore.NewMemory()
	logger.Infof("blob store ready: %T", blobs)

	hookPool := runtime.NumCPU()
	hookMgr := hooks.NewManager(hookPool, log)
	hookMgr.RegisterFileHook("oversized-binary", hooks.NewOversizedBinaryHook(blobs, maxUnLfsedBinaryBytes), hooks.Config{})
	hookMgr.SetHooksForBookmark(hooks.Pattern(regexp.MustCompile(`.*`)), []string{"oversized-binary"})
	logger.Infof("hook manager ready with pool size %d", hookPool)

	j := journal.New(*journalPath)
	if err := j.CreateJournal(); err != nil {
		logger.Errorf("error opening journal: %v", err)
		os.Exit(1)
	}
	if err := j.WriteHeader(); err != nil {
		logger.Errorf("error writing journal header: %v", err)
		os.Exit(1)
	}

	if *mappingGraphFile != "" {
		if err := writeMappingGraph(ctx, cfg, mapping, *mappingGraphIds, *mappingGraphFile); err != nil {
			logger.Errorf("error writing mapping graph: %v", err)
		}
	}

	sub, err := bookmarks.NewSubscription(ctx, bookmarkStore, scmtypes.RepositoryId(cfg.LargeRepoID))
	if err != nil {
		logger.Errorf("error starting bookmarks subscription: %v", err)
		os.Exit(1)
	}
	defer sub.Close()

	logger.Infof("scmcored ready: repo_id=%d hook_manager=%p", cfg.LargeRepoID, hookMgr)

	waitForShutdown(logger)
}

// openRoles opens the three SQL roles against MySQL when DSNs are
// configured (production), or falls back to a single in-memory sqlite
// database shared by all three roles (local/dev runs with no DSNs set).
func openRoles(cfg *config.Config) (*sqlstore.Roles, error) {
	if cfg.DB.WritePrimaryDSN == "" {
		return sqlstore.OpenSQLiteForTests(":memory:")
	}
	return sqlstore.OpenMySQL(cfg.DB.WritePrimaryDSN, cfg.DB.ReadPrimaryDSN, cfg.DB.ReadReplicaDSN)
}

func startProfile(mode string) interface{ Stop() } {
	switch mode {
	case "cpu":
		return profile.Start(profile.CPUProfile)
	case "mem":
		return profile.Start(profile.MemProfile)
	case "block":
		return profile.Start(profile.BlockProfile)
	default:
		return nil
	}
}

func waitForShutdown(logger *logrus.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("shutting down on signal: %v", sig)
}

// writeMappingGraph resolves idsCSV (comma-separated hex large-repo
// changeset ids) against the mapping store and renders the result as a
// dot file at path, for `dot -Tpng` or similar operator tooling.
func writeMappingGraph(ctx context.Context, cfg *config.Config, mapping *commitsync.Mapping, idsCSV, path string) error {
	large := scmtypes.RepositoryId(cfg.LargeRepoID)
	small := scmtypes.RepositoryId(cfg.SmallRepoID)

	var ids []scmtypes.ChangesetId
	for _, hexId := range strings.Split(idsCSV, ",") {
		hexId = strings.TrimSpace(hexId)
		if hexId == "" {
			continue
		}
		id, err := scmtypes.ChangesetIdFromHex(hexId)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	g := rewritegraph.NewMappingGraph()
	if len(ids) > 0 {
		found, err := mapping.GetMany(ctx, large, small, ids)
		if err != nil {
			return err
		}
		for _, sourceId := range ids {
			for _, fetched := range found[sourceId] {
				g.AddMapping(commitsync.MappingEntry{
					LargeRepoId: large,
					LargeBcsId:  sourceId,
					SmallRepoId: small,
					SmallBcsId:  fetched.ChangesetId,
					VersionName: fetched.VersionName,
					SourceRepo:  fetched.SourceRepo,
				})
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return g.WriteDot(f)
}
