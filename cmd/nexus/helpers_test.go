package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/loykin/nexus/internal/auth"
	"github.com/loykin/nexus/internal/config"
	"github.com/loykin/nexus/internal/kernel"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func bootedKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	cfg := config.Default()
	k := kernel.New(cfg.Kernel,
		kernel.WithLogger(quiet()),
		kernel.WithAuth(auth.New(auth.WithBcryptCost(bcrypt.MinCost))))
	if err := k.Boot(context.Background(), cfg); err != nil {
		t.Fatalf("boot: %v", err)
	}
	t.Cleanup(func() { _ = k.Close(context.Background()) })
	return k
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

// execute runs the CLI with args and returns everything it printed.
func execute(args ...string) (string, error) {
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}
