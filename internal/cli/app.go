package cli

import (
	"fmt"
	"sync"

	"github.com/jvs-project/taleforge/internal/bootstrap"
	"github.com/jvs-project/taleforge/internal/docstore"
	"github.com/jvs-project/taleforge/internal/fork"
	"github.com/jvs-project/taleforge/internal/run"
	"github.com/jvs-project/taleforge/internal/version"
	"github.com/jvs-project/taleforge/pkg/config"
	"github.com/jvs-project/taleforge/pkg/metrics"
	"github.com/jvs-project/taleforge/pkg/webhook"
)

// app bundles the engines every subcommand drives, built once from the
// resolved config file.
type app struct {
	cfg      *config.Config
	store    docstore.Adapter
	versions *version.Engine
	runs     *run.Engine
	fork     *fork.Handler
	metrics  *metrics.Registry
	notifier *webhook.Client
}

var (
	appOnce sync.Once
	appInst *app
	appErr  error
)

// loadApp builds the shared app singleton from the --config flag,
// memoized for the lifetime of the process.
func loadApp() (*app, error) {
	appOnce.Do(func() {
		appInst, appErr = newApp(configPath)
	})
	return appInst, appErr
}

func newApp(path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	engines, err := bootstrap.Build(cfg, fmtWarn)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      engines.Config,
		store:    engines.Store,
		versions: engines.Versions,
		runs:     engines.Runs,
		fork:     engines.Fork,
		metrics:  engines.Metrics,
		notifier: engines.Notifier,
	}, nil
}
