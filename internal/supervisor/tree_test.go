// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestNewTreeAppliesDefaults(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{})
	def := DefaultTreeConfig()

	if tree.Root() == nil {
		t.Fatal("root supervisor should not be nil")
	}
	if tree.config != def {
		t.Errorf("expected defaults %+v, got %+v", def, tree.config)
	}
}

func TestDefaultTreeConfig(t *testing.T) {
	config := DefaultTreeConfig()
	if config.FailureThreshold != 5.0 {
		t.Errorf("expected FailureThreshold 5.0, got %f", config.FailureThreshold)
	}
	if config.ShutdownTimeout != 45*time.Second {
		t.Errorf("expected ShutdownTimeout 45s, got %v", config.ShutdownTimeout)
	}
}

func TestEveryLayerStartsItsServices(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{ShutdownTimeout: time.Second})

	layers := map[string]*mockService{
		"data":       newMockService("data-svc"),
		"messaging":  newMockService("messaging-svc"),
		"processing": newMockService("processing-svc"),
		"api":        newMockService("api-svc"),
	}
	tree.AddDataService(layers["data"])
	tree.AddMessagingService(layers["messaging"])
	tree.AddProcessingService(layers["processing"])
	tree.AddAPIService(layers["api"])

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for _, svc := range layers {
		svc := svc
		waitFor(t, func() bool { return svc.StartCount() >= 1 })
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down in time")
	}
}

func TestFailingServiceIsRestartedWithoutAffectingOtherLayers(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	failing := newMockService("reconciler")
	failing.maxFails = 2
	stable := newMockService("worker")
	tree.AddProcessingService(failing)
	tree.AddMessagingService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	waitFor(t, func() bool { return failing.StartCount() >= 3 })
	if stable.StartCount() != 1 {
		t.Errorf("stable service restarted: %d starts", stable.StartCount())
	}
}
