package incidental

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linchenxuan/incidental/collector"
	"github.com/linchenxuan/incidental/config"
	"github.com/linchenxuan/incidental/log"
	"github.com/linchenxuan/incidental/plugin"
	"github.com/linchenxuan/incidental/reporter"
	otelplugin "github.com/linchenxuan/incidental/reporter/otel"
	promplugin "github.com/linchenxuan/incidental/reporter/prometheus"
	streamplugin "github.com/linchenxuan/incidental/reporter/stream"
	"github.com/linchenxuan/incidental/task"
)

// ErrUnknownDefinition is returned by Record for a name that was never defined.
var ErrUnknownDefinition = errors.New("unknown definition")

const _stopTimeout = 10 * time.Second

// Incidental is the core application struct, holding the logger, the reporter plugins, the
// task that flushes collectors and the named definitions.
type Incidental struct {
	Logger        *log.StdLogger
	PluginManager *plugin.Manager
	Task          *task.Task

	mu   sync.RWMutex
	defs map[string]*collector.Definition
}

// New builds an application from cfg. A nil cfg uses config.Default.
// It initializes the logger, registers the built-in reporter factories, sets up the configured
// plugins and attaches the configured definitions to a new task.
func New(cfg *config.Config) (*Incidental, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	if err := log.Initialize(&cfg.Log); err != nil {
		return nil, fmt.Errorf("init log: %w", err)
	}
	logger := log.DefaultLogger()

	pm := plugin.NewManager()
	pm.RegisterFactory(promplugin.NewFactory())
	pm.RegisterFactory(otelplugin.NewFactory())
	pm.RegisterFactory(streamplugin.NewFactory())
	if err := pm.SetupPlugins(cfg.Plugin); err != nil {
		pm.DestroyPlugins()
		return nil, err
	}

	reporters := reporter.Multi{reporter.NewLogReporter(log.DebugLevel)}
	for _, p := range pm.Plugins(plugin.Reporter) {
		if r, ok := p.(reporter.Reporter); ok {
			reporters = append(reporters, r)
		}
	}

	t, err := task.New(cfg.Task, reporters)
	if err != nil {
		pm.DestroyPlugins()
		return nil, err
	}

	x := &Incidental{
		Logger:        logger,
		PluginManager: pm,
		Task:          t,
		defs:          make(map[string]*collector.Definition),
	}
	for _, dc := range cfg.Definitions {
		d, err := dc.Define()
		if err != nil {
			pm.DestroyPlugins()
			return nil, err
		}
		if err := x.Attach(context.Background(), d); err != nil {
			pm.DestroyPlugins()
			return nil, err
		}
	}

	logger.Info().Str("task_id", t.ID()).Int("reporters", len(reporters)).
		Int("definitions", len(cfg.Definitions)).Msg("incidental application initialized")
	return x, nil
}

// Attach names and attaches definitions to the task. Names must be unique.
func (x *Incidental) Attach(ctx context.Context, defs ...*collector.Definition) error {
	x.mu.Lock()
	for _, d := range defs {
		if _, ok := x.defs[d.Name()]; ok {
			x.mu.Unlock()
			return fmt.Errorf("%w: duplicate definition %q", collector.ErrInvalidArgument, d.Name())
		}
	}
	for _, d := range defs {
		x.defs[d.Name()] = d
	}
	x.mu.Unlock()
	return x.Task.Attach(ctx, defs...)
}

// Definition returns the definition named name.
func (x *Incidental) Definition(name string) (*collector.Definition, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	d, ok := x.defs[name]
	return d, ok
}

// Record records v on the definition named name.
func (x *Incidental) Record(name string, v float64) error {
	d, ok := x.Definition(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDefinition, name)
	}
	return d.Record(v)
}

// Run starts the task and blocks until ctx is done, then stops the application.
func (x *Incidental) Run(ctx context.Context) error {
	if err := x.Task.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), _stopTimeout)
		defer cancel()
		return errors.Join(err, x.Stop(stopCtx))
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), _stopTimeout)
	defer cancel()
	return x.Stop(stopCtx)
}

// Stop flushes and stops the task, then destroys the plugins.
func (x *Incidental) Stop(ctx context.Context) error {
	x.Logger.Info().Msg("incidental application shutting down")
	err := x.Task.Stop(ctx)
	if errors.Is(err, task.ErrTaskStopped) {
		err = nil
	}
	x.PluginManager.DestroyPlugins()
	log.Refresh()
	return err
}
