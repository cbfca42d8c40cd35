package cmn

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the gateway's process-wide, immutable-after-boot
// configuration, read once from the environment (spec.md §6:
// "Environment"). It is grounded on the teacher's cmn.GCO
// global-config-owner pattern: a single struct built at boot and handed
// out by value/pointer thereafter, never re-read mid-process.
type Config struct {
	NodeName     string
	NodeNames    []string // ordered; defines segment numbering, spec.md §3
	ReplyTimeout time.Duration
	MinConnected int // k in the cluster's fixed k-of-n scheme, spec.md §4.2
}

const (
	envNodeName     = "NIMBUSIO_NODE_NAME"
	envNodeNameSeq  = "NIMBUSIO_NODE_NAME_SEQ"
	envReplyTimeout = "NIMBUSIO_REPLY_TIMEOUT"
	envMinConnected = "NIMBUSIO_MIN_CONNECTED"

	defaultReplyTimeoutSeconds = 300 // spec.md §6 default
)

// LoadConfig parses the environment per spec.md §6 and validates that
// this node's name is present in the node-name sequence. A non-nil error
// here is meant to translate directly into a non-zero boot exit code
// (spec.md §6: "non-zero on boot failure (config, topology, or
// cluster-row absent)").
func LoadConfig() (*Config, error) {
	nodeName := strings.TrimSpace(os.Getenv(envNodeName))
	if nodeName == "" {
		return nil, fmt.Errorf("%s is not set", envNodeName)
	}

	seq := strings.Fields(os.Getenv(envNodeNameSeq))
	if len(seq) == 0 {
		return nil, fmt.Errorf("%s is not set", envNodeNameSeq)
	}

	found := false
	for _, n := range seq {
		if n == nodeName {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("node %q not present in %s (%v)", nodeName, envNodeNameSeq, seq)
	}

	timeout := defaultReplyTimeoutSeconds
	if raw := strings.TrimSpace(os.Getenv(envReplyTimeout)); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %v", envReplyTimeout, err)
		}
		timeout = v
	}

	minConnected := strings.TrimSpace(os.Getenv(envMinConnected))
	if minConnected == "" {
		return nil, fmt.Errorf("%s is not set", envMinConnected)
	}
	k, err := strconv.Atoi(minConnected)
	if err != nil || k <= 0 || k > len(seq) {
		return nil, fmt.Errorf("invalid %s: %q (cluster has %d nodes)", envMinConnected, minConnected, len(seq))
	}

	return &Config{
		NodeName:     nodeName,
		NodeNames:    seq,
		ReplyTimeout: time.Duration(timeout) * time.Second,
		MinConnected: k,
	}, nil
}
