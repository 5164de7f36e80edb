package config

import (
	"testing"
	"time"
)

func TestParsePeers(t *testing.T) {
	peers, err := ParsePeers("2@127.0.0.1:5031, 3@127.0.0.1:5032")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("parsed %d peers, want 2", len(peers))
	}
	if peers[0].ID != 2 || peers[0].Addr != "127.0.0.1:5031" {
		t.Errorf("peer 0 = %+v", peers[0])
	}
	if peers[1].ID != 3 || peers[1].Addr != "127.0.0.1:5032" {
		t.Errorf("peer 1 = %+v", peers[1])
	}
}

func TestParsePeersEmpty(t *testing.T) {
	peers, err := ParsePeers("  ")
	if err != nil || peers != nil {
		t.Fatalf("empty spec = (%v, %v), want (nil, nil)", peers, err)
	}
}

func TestParsePeersInvalid(t *testing.T) {
	for _, spec := range []string{"nope", "x@host:1", "1"} {
		if _, err := ParsePeers(spec); err == nil {
			t.Errorf("spec %q parsed without error", spec)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.ID = 1
		c.Peers = []Peer{{ID: 2, Addr: "h:1"}, {ID: 3, Addr: "h:2"}}
		return c
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero id", func(c *Config) { c.ID = 0 }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"self peer", func(c *Config) { c.Peers[0].ID = c.ID }},
		{"duplicate peer", func(c *Config) { c.Peers[1].ID = c.Peers[0].ID }},
		{"peer without address", func(c *Config) { c.Peers[0].Addr = "" }},
		{"zero election base", func(c *Config) { c.ElectionTimerBase = 0 }},
		{"heartbeat above election base", func(c *Config) { c.HeartbeatInterval = 2 * time.Second }},
		{"zero batch cap", func(c *Config) { c.MaxEntriesPerAppend = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}
