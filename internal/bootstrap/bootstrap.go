// Package bootstrap builds the full set of engines a taleforge process
// needs from a loaded config, shared by the cmd/taleforge CLI and the
// cmd/taleforged daemon so neither reimplements the other's wiring.
package bootstrap

import (
	"fmt"
	"os"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/jvs-project/taleforge/internal/docstore"
	"github.com/jvs-project/taleforge/internal/docstore/sqlitestore"
	"github.com/jvs-project/taleforge/internal/fork"
	"github.com/jvs-project/taleforge/internal/jobqueue"
	"github.com/jvs-project/taleforge/internal/run"
	"github.com/jvs-project/taleforge/internal/version"
	"github.com/jvs-project/taleforge/pkg/config"
	"github.com/jvs-project/taleforge/pkg/metrics"
	"github.com/jvs-project/taleforge/pkg/webhook"
)

// Engines bundles every engine a taleforge process drives, built once from
// a resolved config.
type Engines struct {
	Config   *config.Config
	Store    docstore.Adapter
	Versions *version.Engine
	Runs     *run.Engine
	Fork     *fork.Handler
	Metrics  *metrics.Registry
	Notifier *webhook.Client
}

// Build wires every engine from cfg. warn is called with a human-readable
// message whenever a fallback is taken (no reachable Kubernetes cluster);
// pass a no-op to suppress it.
func Build(cfg *config.Config, warn func(format string, args ...any)) (*Engines, error) {
	store, err := sqlitestore.Open(cfg.MetadataDB)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	jobRunner, taskQueue := BuildJobQueue(cfg, warn)

	metricsReg := metrics.Default()

	var notifier *webhook.Client
	if cfg.Webhooks != nil {
		notifier = webhook.NewClient(cfg.Webhooks.ToWebhookConfig())
	}

	versions := version.NewEngine(store, cfg.StorageRoot, cfg.DefaultEngine, cfg.AuditLogPath).
		WithMetrics(metricsReg).
		WithNotifier(notifier)

	runs := run.NewEngine(store, cfg.StorageRoot, cfg.DefaultEngine, cfg.AuditLogPath, jobRunner, taskQueue).
		WithMetrics(metricsReg).
		WithNotifier(notifier)

	forkHandler := fork.NewHandler(store, cfg.StorageRoot, cfg.AuditLogPath, versions).
		WithNotifier(notifier)

	return &Engines{
		Config:   cfg,
		Store:    store,
		Versions: versions,
		Runs:     runs,
		Fork:     forkHandler,
		Metrics:  metricsReg,
		Notifier: notifier,
	}, nil
}

// BuildJobQueue wires a real Kubernetes Job dispatcher when a cluster is
// reachable (in-cluster service account, or KUBECONFIG / ~/.kube/config
// out-of-cluster), falling back to an in-memory fake so the process stays
// usable without a cluster.
func BuildJobQueue(cfg *config.Config, warn func(format string, args ...any)) (jobqueue.JobRunner, jobqueue.TaskQueue) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			if home, homeErr := os.UserHomeDir(); homeErr == nil {
				kubeconfig = home + "/.kube/config"
			}
		}
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		warn("no kubernetes config available, falling back to an in-memory job queue: %v", err)
		return jobqueue.NewFakeJobRunner("taleforge-local"), jobqueue.NewFakeTaskQueue()
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		warn("kubernetes client construction failed, falling back to an in-memory job queue: %v", err)
		return jobqueue.NewFakeJobRunner("taleforge-local"), jobqueue.NewFakeTaskQueue()
	}

	namespace := os.Getenv("TALEFORGE_NAMESPACE")
	if namespace == "" {
		namespace = "default"
	}
	image := os.Getenv("TALEFORGE_RUN_IMAGE")
	if image == "" {
		image = "taleforge/run-worker:latest"
	}

	return jobqueue.NewK8sJobRunner(clientset, namespace, image, namespace),
		jobqueue.NewK8sTaskQueue(clientset, namespace)
}
