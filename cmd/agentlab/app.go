package main

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/agentlab/internal/agent"
	"github.com/rahul/agentlab/internal/college"
	"github.com/rahul/agentlab/internal/extract"
	"github.com/rahul/agentlab/internal/governance"
	"github.com/rahul/agentlab/internal/llm"
	"github.com/rahul/agentlab/internal/loader"
	"github.com/rahul/agentlab/internal/marketing"
	"github.com/rahul/agentlab/internal/observability"
	"github.com/rahul/agentlab/internal/search"
	"github.com/rahul/agentlab/internal/store"
	"github.com/rahul/agentlab/internal/tools"
	"github.com/rahul/agentlab/internal/workflow"
	"github.com/rahul/agentlab/pkg/config"
)

// app holds every component a command may need, wired from the config.
type app struct {
	cfg         *config.Config
	db          *sql.DB
	model       llms.Model
	client      *llm.Client
	logger      *observability.Logger
	loader      loader.Loader
	searcher    search.Searcher
	tools       *tools.Registry
	checkpoints *store.CheckpointStore
	history     *store.HistoryStore
	sequencer   *workflow.Sequencer
	// sequencers holds every checkpointed agent's sequencer by agent key.
	sequencers  map[string]*workflow.Sequencer
	active      *agent.ActiveRuns
	planExecute *agent.PlanExecute
	marketing   *marketing.Agent
	colleges    *college.Finder
	extractor   *extract.Extractor
	agents      *agent.Registry

	closers []func()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s:\n%w", configPath, err)
	}
	return cfg, nil
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, active: agent.NewActiveRuns()}

	var events io.Writer = io.Discard
	if verbose {
		events = os.Stderr
	}
	a.logger = observability.NewLogger(events, cfg.App.LogDir)

	name, p := cfg.GetDefaultProvider()
	a.model, err = llm.NewModel(llm.ProviderConfig{Name: name, APIKey: p.APIKey, Model: p.Model, BaseURL: p.BaseURL})
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}
	a.client = llm.NewClient(a.model, a.logger)

	policy, err := buildPolicy(cfg.Governance)
	if err != nil {
		return nil, err
	}

	a.db, err = store.Open(cfg.Memory.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { a.db.Close() })
	a.checkpoints = store.NewCheckpointStore(a.db)
	a.history = store.NewHistoryStore(a.db)

	if cfg.Loader.Browser {
		browser := loader.NewBrowserLoader(cfg.Loader.Timeout, cfg.Loader.MaxChars)
		a.closers = append(a.closers, browser.Close)
		a.loader = browser
	} else {
		a.loader = loader.NewHTTPLoader(cfg.Loader.UserAgent, cfg.Loader.Timeout, cfg.Loader.MaxChars)
	}

	ddg, err := search.NewDuckDuckGo(10)
	if err != nil {
		log.Printf("Warning: Failed to initialize search: %v", err)
	} else {
		a.searcher = ddg
	}

	a.tools = a.buildTools()

	prompts := agent.NewPromptManager(cfg.App.PromptsDir)
	planner := agent.NewPlanner(a.client, prompts, a.tools, cfg.Workflow.MinSteps, cfg.Workflow.MaxSteps)
	executor := agent.NewExecutor(a.model, a.tools, policy, prompts, a.logger, cfg.Workflow.MaxToolSteps)

	newSequencer := func(key string, d workflow.Decomposer) *workflow.Sequencer {
		return workflow.NewSequencer(d, executor, workflow.Options{
			CallTimeout:  cfg.Workflow.CallTimeout,
			Agent:        key,
			Checkpointer: a.checkpoints,
			Observers:    []workflow.Observer{observability.NewSequencerObserver(a.logger)},
			NewRunID:     uuid.NewString,
		})
	}
	a.sequencer = newSequencer(agent.DefaultAgent, planner)
	vacation := newSequencer(agent.VacationHouseAgent, agent.VacationHousePlan())
	a.sequencers = map[string]*workflow.Sequencer{
		agent.DefaultAgent:       a.sequencer,
		agent.VacationHouseAgent: vacation,
	}
	a.planExecute = agent.NewPlanExecute(a.sequencer, a.active)
	a.extractor = extract.New(a.client)
	a.extractor.MaxChars = cfg.Loader.MaxChars
	a.marketing = marketing.New(a.client, a.loader, a.searcher)
	a.marketing.Extractor = a.extractor
	a.colleges = college.New(a.client, a.loader, a.searcher)
	a.colleges.Extractor = a.extractor

	a.agents = agent.NewRegistry()
	a.agents.Register(agent.Agent{
		Key:         agent.DefaultAgent,
		Description: "Break a task into steps and carry them out one by one",
		Runner:      a.planExecute,
	})
	a.agents.Register(agent.Agent{
		Key:         "marketing",
		Description: "Build a marketing plan for a web app from its URL",
		Runner:      a.marketing,
	})
	a.agents.Register(agent.Agent{
		Key:         agent.VacationHouseAgent,
		Description: "Find vacation homes: candidate towns, listings, verified links, nearby businesses and a summary",
		Runner:      &agent.VacationHouse{PlanExecute: agent.NewPlanExecute(vacation, a.active)},
	})
	a.agents.Register(agent.Agent{
		Key:         "college-finder",
		Description: "Find colleges by major, location, tuition, acceptance rate and SAT score",
		Runner:      a.colleges,
	})
	a.agents.Register(agent.Agent{
		Key:         "research",
		Description: "Answer a question in one pass with web search and page reading",
		Runner:      &agent.Research{Executor: executor},
	})
	return a, nil
}

// sequencerFor returns the sequencer that resumes runs recorded for key.
func (a *app) sequencerFor(key string) (*workflow.Sequencer, error) {
	if key == "" {
		key = agent.DefaultAgent
	}
	seq, ok := a.sequencers[key]
	if !ok {
		return nil, fmt.Errorf("runs of agent %q cannot be resumed", key)
	}
	return seq, nil
}

func (a *app) buildTools() *tools.Registry {
	registry := tools.NewRegistry()
	if a.searcher != nil {
		registry.Register(tools.NewSearchTool(a.searcher))
	}
	registry.Register(tools.NewPageTool(a.loader))

	ws, err := tools.NewWorkspaceTool(a.cfg.App.Workspace)
	if err != nil {
		log.Printf("Warning: Workspace tool disabled: %v", err)
	} else {
		registry.Register(ws)
	}
	return registry
}

func buildPolicy(cfg config.GovernanceConfig) (*governance.DefaultPolicyEngine, error) {
	gov, err := governance.New(governance.Rules{
		DeniedTools:    cfg.DeniedTools,
		DeniedPatterns: cfg.DeniedPatterns,
		DeniedHosts:    cfg.DeniedHosts,
	})
	if err != nil {
		return nil, fmt.Errorf("governance: %w", err)
	}
	return gov, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
