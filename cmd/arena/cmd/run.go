package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"github.com/rustyeddy/arena/agent"
	"github.com/rustyeddy/arena/broker/sim"
	"github.com/rustyeddy/arena/competition"
	"github.com/rustyeddy/arena/config"
	"github.com/rustyeddy/arena/decision"
	"github.com/rustyeddy/arena/journal"
	"github.com/rustyeddy/arena/market"
	"github.com/rustyeddy/arena/risk"
	"github.com/rustyeddy/arena/scheduler"
	"github.com/rustyeddy/arena/scoring"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the arena against the simulated exchange",
	Long: `Run every configured agent against a simulated futures exchange.

Agents trade on their own schedule under their risk profile until the
process is interrupted or --duration elapses. Competitions from the
configuration are created and ranked as the arena runs.

Examples:
  arena run -f arena.yaml
  arena run -f arena.yaml --duration 10m --board-every 30s
  arena run -f arena.yaml --metrics-addr :9090`,
	RunE: runArena,
}

var (
	runConfigPath  string
	runDuration    time.Duration
	runBoardEvery  time.Duration
	runMetricsAddr string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "file", "f", "", "path to config file (defaults built in)")
	runCmd.Flags().DurationVarP(&runDuration, "duration", "d", 0, "stop after this long (0 runs until interrupted)")
	runCmd.Flags().DurationVar(&runBoardEvery, "board-every", time.Minute, "leaderboard print interval (0 disables)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

type pyroscopeLogger struct{}

func (pyroscopeLogger) Infof(format string, args ...interface{})  { logs.Infof(format, args...) }
func (pyroscopeLogger) Debugf(_ string, _ ...interface{})          {}
func (pyroscopeLogger) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }

// arena is everything run wires together.
type arena struct {
	cfg     *config.Config
	reg     *agent.Registry
	ex      *sim.Engine
	walk    *sim.Walk
	scores  *scoring.Engine
	comps   *competition.Engine
	sched   *scheduler.Scheduler
	journal journal.Journal
}

func runArena(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if runConfigPath != "" {
		loaded, err := config.LoadFromFile(runConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg.LoadEnv()
	}
	if runMetricsAddr != "" {
		cfg.Metrics.Addr = runMetricsAddr
	}

	if cfg.Profiling.ServerAddress != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.ApplicationName,
			ServerAddress:   cfg.Profiling.ServerAddress,
			Tags:            map[string]string{"service": "arena"},
			Logger:          pyroscopeLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return fmt.Errorf("start profiler: %w", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := buildArena(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.journal.Close()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	a.sched = scheduler.New(cfg.Scheduler, scheduler.Deps{
		Registry: a.reg,
		Exchange: a.ex,
		Quotes:   a.ex.Quotes(),
		Risk:     risk.NewManager(cfg.Risk),
		Scoring:  a.scores,
		Journal:  a.journal,
		Deciders: resolver(ctx, cfg),
	}, scheduler.WithGate(a.comps), scheduler.WithMetrics(scheduler.NewMetrics(promReg)))

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logs.Errorf("metrics server, err: %+v", err)
			}
		}()
		defer srv.Close()
		fmt.Printf("✓ Metrics on %s/metrics\n", cfg.Metrics.Addr)
	}

	done := make(chan struct{})
	go a.tickMarket(cfg.Market.TickInterval, done)
	go a.comps.Run(time.Minute, done)

	a.sched.Start(ctx)
	fmt.Printf("✓ Arena running: %d agents, %d competitions\n", len(a.reg.List()), len(a.comps.List()))

	var timeout <-chan time.Time
	if runDuration > 0 {
		timer := time.NewTimer(runDuration)
		defer timer.Stop()
		timeout = timer.C
	}
	var board <-chan time.Time
	if runBoardEvery > 0 {
		ticker := time.NewTicker(runBoardEvery)
		defer ticker.Stop()
		board = ticker.C
	}

wait:
	for {
		select {
		case <-sys.Shutdown():
			break wait
		case <-timeout:
			break wait
		case <-ctx.Done():
			break wait
		case <-board:
			a.printBoard()
		}
	}

	close(done)
	a.sched.Stop()
	a.printBoard()
	a.save()
	fmt.Println("✓ Arena stopped")
	return nil
}

func buildArena(ctx context.Context, cfg *config.Config) (*arena, error) {
	j, err := cfg.Journal.Open()
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	saved := make(map[string]journal.AgentRecord)
	if store, ok := j.(journal.AgentStore); ok {
		recs, err := store.LoadAgents(ctx)
		if err != nil {
			_ = j.Close()
			return nil, fmt.Errorf("load agents: %w", err)
		}
		for _, rec := range recs {
			saved[rec.ID] = rec
		}
	}

	quotes := market.NewStore()
	ex := sim.NewEngine(cfg.Market.Sim(), quotes)
	walk := sim.NewWalk(ex, cfg.Market.Seed, cfg.Market.Prices(), cfg.Market.Volatility)
	walk.Step(time.Now().UTC())

	reg := agent.NewRegistry()
	for _, ac := range cfg.Agents {
		ag, err := ac.Agent()
		if err != nil {
			_ = j.Close()
			return nil, err
		}
		if rec, ok := saved[ag.ID]; ok {
			ag.Restore(rec)
			logs.Infof("agent=%s restored, capital %.2f status %s", ag.ID, ag.Capital, ag.Status)
		}
		h, err := reg.Create(ag)
		if err != nil {
			_ = j.Close()
			return nil, err
		}
		ex.OpenAccount(h.ID(), h.Agent().Capital)
	}

	scores := scoring.NewEngine(cfg.Scoring)
	comps := competition.NewEngine(reg, scores, cfg.Competition)
	now := time.Now().UTC()
	for _, cc := range cfg.Competitions {
		spec, err := cc.Spec(now)
		if err != nil {
			_ = j.Close()
			return nil, fmt.Errorf("competition %q: %w", cc.Name, err)
		}
		c, err := comps.Create(spec)
		if err != nil {
			_ = j.Close()
			return nil, fmt.Errorf("competition %q: %w", cc.Name, err)
		}
		for _, id := range cc.Members {
			if err := comps.Join(c.ID, id); err != nil {
				logs.Errorf("competition=%s join agent=%s, err: %+v", c.ID, id, err)
			}
		}
		if c.Kind == competition.League {
			if err := comps.Start(c.ID); err != nil {
				logs.Errorf("competition=%s start, err: %+v", c.ID, err)
			}
		}
	}

	return &arena{cfg: cfg, reg: reg, ex: ex, walk: walk, scores: scores, comps: comps, journal: j}, nil
}

// resolver registers the deciders agents may name. The LLM decider is
// only built when an API key is configured.
func resolver(ctx context.Context, cfg *config.Config) *decision.Resolver {
	r := decision.NewResolver()
	ruleCfg := cfg.Rule
	r.Register("rule", func(agent.Agent) (decision.Decider, error) {
		return decision.NewRule(ruleCfg), nil
	})
	llmCfg := cfg.LLM
	r.Register("llm", func(a agent.Agent) (decision.Decider, error) {
		if llmCfg.APIKey == "" {
			return nil, errors.New("llm decider needs ARENA_LLM_API_KEY")
		}
		m, err := decision.NewChatModel(ctx, llmCfg)
		if err != nil {
			return nil, err
		}
		return decision.NewLLM(m), nil
	})
	return r
}

func (a *arena) tickMarket(every time.Duration, done <-chan struct{}) {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			a.walk.Step(now.UTC())
		}
	}
}

func (a *arena) printBoard() {
	for _, c := range a.comps.List() {
		r, ok := a.comps.LatestRanking(c.ID)
		if !ok || !r.Final {
			var err error
			if r, err = a.comps.Rank(c.ID); err != nil {
				logs.Errorf("competition=%s rank, err: %+v", c.ID, err)
				continue
			}
		}
		fmt.Println(renderRanking(c, r, a.reg))
	}
}

func (a *arena) save() {
	store, ok := a.journal.(journal.AgentStore)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, h := range a.reg.List() {
		if err := store.SaveAgent(ctx, h.Agent().Record()); err != nil {
			logs.Errorf("agent=%s save, err: %+v", h.ID(), err)
		}
	}
}
