package jobqueue

import (
	"context"
	"fmt"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	runIDLabel      = "taleforge.io/run-id"
	projectIDLabel  = "taleforge.io/project-id"
	workerQueueLabel = "taleforge.io/worker-queue"
)

// K8sJobRunner dispatches runs as Kubernetes batch Jobs.
type K8sJobRunner struct {
	clientset   kubernetes.Interface
	namespace   string
	image       string
	workerQueue string
}

// NewK8sJobRunner builds a JobRunner that creates batch/v1 Jobs in
// namespace, all running image, labeled with workerQueue for later
// correlation by K8sTaskQueue.
func NewK8sJobRunner(clientset kubernetes.Interface, namespace, image, workerQueue string) *K8sJobRunner {
	return &K8sJobRunner{clientset: clientset, namespace: namespace, image: image, workerQueue: workerQueue}
}

// Dispatch creates a Job named run-<runID> running entrypoint against the
// configured worker image.
func (r *K8sJobRunner) Dispatch(ctx context.Context, runID, projectID, entrypoint string) (*JobHandle, error) {
	if entrypoint == "" {
		entrypoint = "run.sh"
	}

	jobName := fmt.Sprintf("run-%s", runID)
	backoffLimit := int32(0)
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: r.namespace,
			Labels: map[string]string{
				runIDLabel:      runID,
				projectIDLabel:  projectID,
				workerQueueLabel: r.workerQueue,
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{
						runIDLabel:      runID,
						workerQueueLabel: r.workerQueue,
					},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:    "run",
							Image:   r.image,
							Command: []string{"/bin/sh", "-c", entrypoint},
							Env: []corev1.EnvVar{
								{Name: "RUN_ID", Value: runID},
								{Name: "PROJECT_ID", Value: projectID},
							},
						},
					},
				},
			},
		},
	}

	created, err := r.clientset.BatchV1().Jobs(r.namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("create job %s: %w", jobName, err)
	}

	return &JobHandle{JobID: created.Name, WorkerQueue: r.workerQueue}, nil
}

// K8sTaskQueue answers heartbeat-reaper queries against the same
// namespace's Jobs and Pods.
type K8sTaskQueue struct {
	clientset kubernetes.Interface
	namespace string
}

// NewK8sTaskQueue builds a TaskQueue backed by the cluster's batch/v1 Jobs.
func NewK8sTaskQueue(clientset kubernetes.Interface, namespace string) *K8sTaskQueue {
	return &K8sTaskQueue{clientset: clientset, namespace: namespace}
}

// ActiveWorkerQueues lists the distinct worker-queue labels present among
// currently unfinished Jobs.
func (q *K8sTaskQueue) ActiveWorkerQueues(ctx context.Context) ([]string, error) {
	jobs, err := q.clientset.BatchV1().Jobs(q.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	seen := make(map[string]bool)
	var queues []string
	for _, job := range jobs.Items {
		if job.Status.CompletionTime != nil {
			continue
		}
		wq := job.Labels[workerQueueLabel]
		if wq == "" || seen[wq] {
			continue
		}
		seen[wq] = true
		queues = append(queues, wq)
	}
	return queues, nil
}

// ActiveTasks lists run ids with an unfinished Job labeled workerQueue.
func (q *K8sTaskQueue) ActiveTasks(ctx context.Context, workerQueue string) ([]string, error) {
	jobs, err := q.clientset.BatchV1().Jobs(q.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", workerQueueLabel, workerQueue),
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs for %s: %w", workerQueue, err)
	}

	var runIDs []string
	for _, job := range jobs.Items {
		if job.Status.CompletionTime != nil {
			continue
		}
		if id := job.Labels[runIDLabel]; id != "" {
			runIDs = append(runIDs, id)
		}
	}
	return runIDs, nil
}

// CheckOnRun probes the Job's pod status, bounded to a 60s wait per spec.
func (q *K8sTaskQueue) CheckOnRun(ctx context.Context, workerQueue, taskID string) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	pods, err := q.clientset.CoreV1().Pods(q.namespace).List(probeCtx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", runIDLabel, taskID),
	})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("list pods for %s: %w", taskID, err)
	}

	for _, pod := range pods.Items {
		switch pod.Status.Phase {
		case corev1.PodRunning, corev1.PodPending:
			return true, nil
		}
	}
	return false, nil
}

// CleanupRun deletes the Job backing taskID. The credential is accepted
// for interface symmetry with production deployments that scope the
// delete call to a short-lived service account token; the in-cluster
// clientset already carries its own credentials.
func (q *K8sTaskQueue) CleanupRun(ctx context.Context, workerQueue, taskID, credential string) error {
	jobName := fmt.Sprintf("run-%s", taskID)
	propagation := metav1.DeletePropagationForeground
	err := q.clientset.BatchV1().Jobs(q.namespace).Delete(ctx, jobName, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete job %s: %w", jobName, err)
	}
	return nil
}
