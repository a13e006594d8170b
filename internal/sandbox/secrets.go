package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// SecretStore exposes read-only access to Kubernetes Secrets a module may
// request via a module:call or custom capability referencing a credential
// name. Adapted from internal/infrastructure/k8s/client.go's K8sClient
// wrapper, narrowed from the teacher's publishing-target secret discovery
// to a single GetSecret accessor the sandbox gates behind a capability
// check before a module ever sees a value.
type SecretStore interface {
	GetSecret(ctx context.Context, namespace, name string) (map[string][]byte, error)
	Health(ctx context.Context) error
	Close() error
}

// SecretStoreConfig configures the Kubernetes-backed SecretStore.
type SecretStoreConfig struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultSecretStoreConfig mirrors the teacher's DefaultK8sClientConfig.
func DefaultSecretStoreConfig() SecretStoreConfig {
	return SecretStoreConfig{Timeout: 30 * time.Second}
}

type k8sSecretStore struct {
	client  kubernetes.Interface
	timeout time.Duration
	logger  *slog.Logger
}

// NewSecretStore builds a SecretStore using in-cluster config, falling back
// to the caller's kubeconfig resolution if restConfig is supplied directly.
func NewSecretStore(restConfig *rest.Config, cfg SecretStoreConfig) (SecretStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("sandbox: build k8s client: %w", err)
	}
	return &k8sSecretStore{client: clientset, timeout: cfg.Timeout, logger: cfg.Logger.With("component", "sandbox_secrets")}, nil
}

func (s *k8sSecretStore) GetSecret(ctx context.Context, namespace, name string) (map[string][]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	secret, err := s.client.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("sandbox: get secret %s/%s: %w", namespace, name, err)
	}
	return secretData(secret), nil
}

func secretData(s *corev1.Secret) map[string][]byte {
	out := make(map[string][]byte, len(s.Data))
	for k, v := range s.Data {
		out[k] = v
	}
	return out
}

func (s *k8sSecretStore) Health(context.Context) error {
	if _, err := s.client.Discovery().ServerVersion(); err != nil {
		return fmt.Errorf("sandbox: k8s health check: %w", err)
	}
	return nil
}

func (s *k8sSecretStore) Close() error { return nil }
