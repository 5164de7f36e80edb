package server

import (
	"os"
	"testing"
	"time"

	"github.com/kartikbazzad/bunraft/internal/config"
	"github.com/kartikbazzad/bunraft/internal/logger"
	"github.com/kartikbazzad/bunraft/internal/rpc"
)

func TestMain(m *testing.M) {
	logger.Init(logger.Config{Level: "ERROR", Format: "text"})
	os.Exit(m.Run())
}

// A single-node server elects itself, accepts a propose over the wire, and
// reports the commit through status.
func TestSingleNodeServer(t *testing.T) {
	cfg := config.Default()
	cfg.ID = 1
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "" // not under test
	cfg.DataDir = t.TempDir()
	cfg.ElectionTimerBase = 150 * time.Millisecond
	cfg.ElectionTimerFluctuate = 150 * time.Millisecond

	srv, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Close()

	client := rpc.NewClient(time.Second)
	addr := srv.Addr()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, err := client.SendStatus(addr)
		if err == nil && status.State == "Leader" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	prop, err := client.SendPropose(addr, []byte("hello"))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if !prop.IsLeader || prop.Index != 1 {
		t.Fatalf("propose reply = %+v", prop)
	}

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		status, err := client.SendStatus(addr)
		if err == nil && status.CommitIndex >= 1 && status.LastApplied >= 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("proposed command did not commit and apply")
}

func TestServerRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ID = 0
	cfg.DataDir = t.TempDir()
	if _, err := NewServer(cfg, nil); err == nil {
		t.Fatal("server accepted an invalid config")
	}
}
