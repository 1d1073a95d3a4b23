package cmd

import (
	"os"
	"path/filepath"

	"github.com/TheSmartAz/zaoya-sub001/internal/agent"
	"github.com/TheSmartAz/zaoya-sub001/internal/check"
	"github.com/TheSmartAz/zaoya-sub001/internal/config"
	"github.com/TheSmartAz/zaoya-sub001/internal/log"
	"github.com/TheSmartAz/zaoya-sub001/internal/orchestrator"
	"github.com/TheSmartAz/zaoya-sub001/internal/repotool"
	"github.com/TheSmartAz/zaoya-sub001/internal/session"
	"github.com/TheSmartAz/zaoya-sub001/internal/snapshot"
	"github.com/TheSmartAz/zaoya-sub001/internal/store"
	"github.com/TheSmartAz/zaoya-sub001/internal/validate"
)

// defaultStoreDir is where the CLI persists build state when the config
// does not name a store directory
const defaultStoreDir = ".zaoya/builds"

// engine bundles everything a command needs to drive one build
type engine struct {
	cfg      *config.Config
	logger   *log.Logger
	store    store.Store
	tree     *repotool.Tree
	sessions *session.Manager
}

// newEngine wires the collaborators for one build's sandbox
func newEngine(buildID string) (*engine, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cfg.StoreDir == "" {
		cfg.StoreDir = defaultStoreDir
	}

	logger := log.New(log.Config{
		Level:  log.ParseLevel(cfg.Log.Level),
		Format: log.ParseFormat(cfg.Log.Format),
		Output: log.OutputStderr(),
	})

	st, err := store.NewFileStore(cfg.StoreDir)
	if err != nil {
		return nil, err
	}

	tree, err := repotool.NewTree(filepath.Join(cfg.SandboxRoot, buildID))
	if err != nil {
		return nil, err
	}
	snaps, err := snapshot.NewManager(tree, filepath.Join(cfg.SnapshotDir, buildID), logger)
	if err != nil {
		return nil, err
	}

	gen, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}

	orch := orchestrator.New(
		st,
		tree,
		agent.NewPlanner(gen, logger, cfg.Retry.AgentAttempts, cfg.Agent.MaxTokens, cfg.Agent.Temperature),
		agent.NewImplementer(gen, logger, cfg.Agent.MaxTokens, cfg.Agent.Temperature),
		agent.NewReviewer(gen, logger, cfg.Agent.MaxTokens, cfg.Agent.Temperature),
		validate.NewRunner(),
		check.NewTools(tree.Root(), cfg.Check, logger),
		snaps,
		cfg,
		logger,
	)

	return &engine{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		tree:     tree,
		sessions: session.NewManager(orch, cfg, logger),
	}, nil
}

// newGenerator picks the model backend from the flags
func newGenerator(cfg *config.Config) (agent.TextGenerator, error) {
	if len(agentCmd) > 0 {
		return agent.NewCommandGenerator(agentCmd, cfg.Agent.Timeout())
	}

	key := apiKey
	if key == "" {
		key = os.Getenv("ZAOYA_API_KEY")
	}
	return agent.NewOpenAIGenerator(key, baseURL, modelName, cfg.Agent.Timeout())
}
