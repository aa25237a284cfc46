package audit

import (
	"go.uber.org/zap"

	"github.com/gzhole/toolwarden/internal/rpc"
)

// Defaults for the SIEM event envelope.
const (
	DefaultAgentName   = "toolwarden-gateway"
	DefaultManagerName = "siem-manager"
	DefaultLocation    = "toolwarden-audit"
	DefaultDecoder     = "toolwarden-decoder"
)

type Name struct {
	Name string `json:"name"`
}

// Event is a record wrapped for SIEM ingestion.
type Event struct {
	Agent     Name   `json:"agent"`
	Manager   Name   `json:"manager"`
	ID        string `json:"id"`
	FullLog   string `json:"full_log"`
	Timestamp string `json:"timestamp"`
	Location  string `json:"location"`
	Decoder   Name   `json:"decoder"`
}

// SIEMConfig names the event source.
type SIEMConfig struct {
	AgentName   string
	ManagerName string
	Location    string
	Decoder     string
}

func (c SIEMConfig) withDefaults() SIEMConfig {
	if c.AgentName == "" {
		c.AgentName = DefaultAgentName
	}
	if c.ManagerName == "" {
		c.ManagerName = DefaultManagerName
	}
	if c.Location == "" {
		c.Location = DefaultLocation
	}
	if c.Decoder == "" {
		c.Decoder = DefaultDecoder
	}
	return c
}

// Forwarder emits SIEM events to a logging sink.
type Forwarder struct {
	cfg SIEMConfig
	log *zap.Logger
}

func NewForwarder(cfg SIEMConfig, log *zap.Logger) *Forwarder {
	return &Forwarder{cfg: cfg.withDefaults(), log: log}
}

// Event wraps rec without emitting it.
func (f *Forwarder) Event(rec Record) (Event, error) {
	full, err := rpc.CanonicalString(rec)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Agent:     Name{f.cfg.AgentName},
		Manager:   Name{f.cfg.ManagerName},
		ID:        rec.RecordID,
		FullLog:   full,
		Timestamp: rec.Timestamp,
		Location:  f.cfg.Location,
		Decoder:   Name{f.cfg.Decoder},
	}, nil
}

// Forward emits the event for rec.
func (f *Forwarder) Forward(rec Record) error {
	ev, err := f.Event(rec)
	if err != nil {
		return err
	}
	f.log.Info("siem event", zap.Any("siem", ev))
	return nil
}
