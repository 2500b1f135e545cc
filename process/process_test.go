package process

import (
	"context"
	"net"
	"testing"
	"time"
)

func testConfig(t *testing.T, name string) Config {
	t.Helper()
	cfg := DefaultConfig(name)
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.CriticalStateDir = t.TempDir()
	cfg.PIDDir = t.TempDir()
	cfg.ProcDir = t.TempDir()
	return cfg
}

func TestInitBringsUpLoopEngineAndStore(t *testing.T) {
	withStubbedTuning(t)

	p := New(testConfig(t, "adcs"))
	if err := p.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Close()

	if p.Loop == nil || p.Engine == nil || p.Store == nil {
		t.Fatal("Init should populate Loop, Engine, and Store")
	}

	out := make([]byte, 8)
	if _, err := p.Store.Read(out); err != nil {
		t.Fatalf("Store.Read on a freshly initialized store: %v", err)
	}
}

func TestRunExitsWhenContextCancelled(t *testing.T) {
	withStubbedTuning(t)

	p := New(testConfig(t, "adcs"))
	if err := p.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run never returned after its context was cancelled")
	}
}

func TestRegisterHandlersPassThroughToEngine(t *testing.T) {
	withStubbedTuning(t)

	p := New(testConfig(t, "adcs"))
	if err := p.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Close()

	if err := p.RegisterLegacyHandler(0x10, false, func(*net.UDPAddr, []byte) {}); err != nil {
		t.Fatalf("RegisterLegacyHandler: %v", err)
	}
}
