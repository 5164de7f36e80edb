// Package config provides Bunraft node configuration: defaults, flag parsing,
// environment overlay, and boot-time validation.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Peer is the static descriptor of another node in the cluster.
type Peer struct {
	ID   uint64 `mapstructure:"id"`
	Addr string `mapstructure:"addr"` // host:port
}

// Config holds Bunraft node configuration. Read at boot, immutable thereafter.
type Config struct {
	ID          uint64 `mapstructure:"id"`      // This node's identifier
	ListenAddr  string `mapstructure:"addr"`    // TCP listen address for Raft RPCs
	DataDir     string `mapstructure:"data"`    // Durable state directory
	MetricsAddr string `mapstructure:"metrics"` // Prometheus listen address; empty disables

	Peers []Peer `mapstructure:"-"` // Every *other* node; parsed from PeerSpec

	ElectionTimerBase      time.Duration `mapstructure:"election-base"`
	ElectionTimerFluctuate time.Duration `mapstructure:"election-fluctuate"`
	HeartbeatInterval      time.Duration `mapstructure:"heartbeat"`
	MaxEntriesPerAppend    int           `mapstructure:"max-append"`

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`

	// DemoProposeInterval, when positive, makes the node propose a counter
	// command at that cadence while it is leader. Load-generation aid for
	// local clusters; off by default.
	DemoProposeInterval time.Duration `mapstructure:"demo-propose"`

	// PeerSpec is the flat peer list "id@host:port,id@host:port".
	PeerSpec string `mapstructure:"peers"`
}

// Default returns default configuration. The election window matches the
// original single-machine defaults (1s base + 1s fluctuation); production
// clusters typically lower it to 150ms/150ms.
func Default() *Config {
	return &Config{
		ID:                     1,
		ListenAddr:             ":5030",
		DataDir:                "./bunraft-data",
		MetricsAddr:            ":9030",
		ElectionTimerBase:      1000 * time.Millisecond,
		ElectionTimerFluctuate: 1000 * time.Millisecond,
		HeartbeatInterval:      50 * time.Millisecond,
		MaxEntriesPerAppend:    5,
		LogLevel:               "INFO",
		LogFormat:              "json",
	}
}

// ParseFlags parses command-line flags into the config, then overlays
// BUNRAFT_* environment variables (env wins over defaults, flags win over env
// only when explicitly set).
func (c *Config) ParseFlags() error {
	flag.Uint64Var(&c.ID, "id", c.ID, "node identifier")
	flag.StringVar(&c.ListenAddr, "addr", c.ListenAddr, "TCP listen address for Raft RPCs")
	flag.StringVar(&c.DataDir, "data", c.DataDir, "durable state directory")
	flag.StringVar(&c.MetricsAddr, "metrics", c.MetricsAddr, "Prometheus listen address (empty to disable)")
	flag.StringVar(&c.PeerSpec, "peers", c.PeerSpec, "peer list, e.g. 2@127.0.0.1:5031,3@127.0.0.1:5032")
	flag.DurationVar(&c.ElectionTimerBase, "election-base", c.ElectionTimerBase, "election timer base")
	flag.DurationVar(&c.ElectionTimerFluctuate, "election-fluctuate", c.ElectionTimerFluctuate, "election timer fluctuation")
	flag.DurationVar(&c.HeartbeatInterval, "heartbeat", c.HeartbeatInterval, "leader heartbeat interval")
	flag.IntVar(&c.MaxEntriesPerAppend, "max-append", c.MaxEntriesPerAppend, "replication batch cap")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (DEBUG, INFO, WARN, ERROR)")
	flag.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format (json, text)")
	flag.DurationVar(&c.DemoProposeInterval, "demo-propose", c.DemoProposeInterval, "propose a counter command at this interval while leader (0 disables)")
	flag.Parse()

	if err := c.loadEnv(); err != nil {
		return err
	}

	peers, err := ParsePeers(c.PeerSpec)
	if err != nil {
		return err
	}
	c.Peers = peers
	return nil
}

// loadEnv overlays BUNRAFT_* environment variables onto flag values that were
// left at their defaults. BUNRAFT_ELECTION_BASE maps to election-base.
func (c *Config) loadEnv() error {
	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	v := viper.New()
	v.SetEnvPrefix("BUNRAFT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	setStr := func(key string, dst *string) {
		if !explicit[key] && v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	if !explicit["id"] && v.IsSet("id") {
		c.ID = uint64(v.GetInt64("id"))
	}
	setStr("addr", &c.ListenAddr)
	setStr("data", &c.DataDir)
	setStr("metrics", &c.MetricsAddr)
	setStr("peers", &c.PeerSpec)
	setStr("log-level", &c.LogLevel)
	setStr("log-format", &c.LogFormat)
	if !explicit["election-base"] && v.IsSet("election-base") {
		c.ElectionTimerBase = v.GetDuration("election-base")
	}
	if !explicit["election-fluctuate"] && v.IsSet("election-fluctuate") {
		c.ElectionTimerFluctuate = v.GetDuration("election-fluctuate")
	}
	if !explicit["heartbeat"] && v.IsSet("heartbeat") {
		c.HeartbeatInterval = v.GetDuration("heartbeat")
	}
	if !explicit["max-append"] && v.IsSet("max-append") {
		c.MaxEntriesPerAppend = v.GetInt("max-append")
	}
	return nil
}

// ParsePeers parses "id@host:port,id@host:port" into peer descriptors.
// An empty spec is a single-node cluster.
func ParsePeers(spec string) ([]Peer, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}
	var peers []Peer
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idAddr := strings.SplitN(part, "@", 2)
		if len(idAddr) != 2 {
			return nil, fmt.Errorf("invalid peer %q: want id@host:port", part)
		}
		id, err := strconv.ParseUint(idAddr[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid peer id %q: %w", idAddr[0], err)
		}
		peers = append(peers, Peer{ID: id, Addr: idAddr[1]})
	}
	return peers, nil
}

// Validate returns an error for configurations the node must refuse to boot
// with: id 0, duplicate or self-referential peers, non-positive timings.
func (c *Config) Validate() error {
	if c.ID == 0 {
		return fmt.Errorf("node id must be non-zero")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	seen := map[uint64]bool{c.ID: true}
	for _, p := range c.Peers {
		if p.ID == c.ID {
			return fmt.Errorf("peer id %d duplicates this node's id", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate peer id %d", p.ID)
		}
		if p.Addr == "" {
			return fmt.Errorf("peer %d has no address", p.ID)
		}
		seen[p.ID] = true
	}
	if c.ElectionTimerBase <= 0 || c.ElectionTimerFluctuate < 0 {
		return fmt.Errorf("invalid election timer window %v+%v", c.ElectionTimerBase, c.ElectionTimerFluctuate)
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.ElectionTimerBase {
		return fmt.Errorf("heartbeat interval %v must be positive and below election base %v", c.HeartbeatInterval, c.ElectionTimerBase)
	}
	if c.MaxEntriesPerAppend <= 0 {
		return fmt.Errorf("max entries per append must be positive")
	}
	return nil
}
