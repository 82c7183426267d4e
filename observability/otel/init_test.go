package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{Traces: true})
	require.Error(t, err)
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "discountd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = secret ,broken, =empty,tenant=cps")
	require.Equal(t, map[string]string{"api-key": "secret", "tenant": "cps"}, headers)
}

func TestSamplerDescription(t *testing.T) {
	require.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	require.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestShutdownChainRunsInReverseAndJoinsErrors(t *testing.T) {
	var order []int
	errFirst := errors.New("first")
	errLast := errors.New("last")
	chain := shutdownChain{
		func(context.Context) error { order = append(order, 0); return errFirst },
		func(context.Context) error { order = append(order, 1); return nil },
		func(context.Context) error { order = append(order, 2); return errLast },
	}
	err := chain.run(context.Background())
	require.Equal(t, []int{2, 1, 0}, order)
	require.ErrorIs(t, err, errFirst)
	require.ErrorIs(t, err, errLast)
}

func TestConfigResourceCarriesServiceIdentity(t *testing.T) {
	cfg := Config{ServiceName: "discountd", ServiceVersion: "1.2.0", Environment: "staging"}
	require.Equal(t, defaultEndpoint, cfg.endpoint())

	res, err := cfg.resource()
	require.NoError(t, err)
	set := res.Set()
	name, ok := set.Value(semconv.ServiceNameKey)
	require.True(t, ok)
	require.Equal(t, "discountd", name.AsString())
	version, ok := set.Value(semconv.ServiceVersionKey)
	require.True(t, ok)
	require.Equal(t, "1.2.0", version.AsString())
	env, ok := set.Value(semconv.DeploymentEnvironmentKey)
	require.True(t, ok)
	require.Equal(t, "staging", env.AsString())
}
