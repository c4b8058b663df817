//go:build integration

package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/broker"
	"github.com/keygate/keygate/internal/testutil"
)

func TestBroker_Connect(t *testing.T) {
	redisURL := testutil.RequireEnv(t, "REDIS_URL")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b, err := broker.New(ctx, redisURL, broker.DefaultOptions())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Ping(ctx))
	require.NotNil(t, b.Client())
}

func TestBroker_BadURL(t *testing.T) {
	_, err := broker.New(context.Background(), "not-a-url", broker.DefaultOptions())
	require.Error(t, err)
}
