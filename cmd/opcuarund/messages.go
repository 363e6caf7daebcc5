package main

import (
	"strings"

	"github.com/scadaworks/opcua-runtime/internal/browse"
)

// DataMessage is published on <module>.data.<tag> whenever a
// registered variable's value passes the deadband check. Adapted from
// the teacher's PlcDataMessage, one field dropped (deviceId — this
// runtime manages a single session, not a device fleet).
type DataMessage struct {
	ModuleID  string      `json:"moduleId"`
	Tag       string      `json:"tag"`
	Value     interface{} `json:"value"`
	Timestamp int64       `json:"timestamp"`
	Quality   string      `json:"quality"`
}

// StateMessage is published on <module>.state on every connection
// state transition.
type StateMessage struct {
	ModuleID  string `json:"moduleId"`
	Prev      string `json:"prev"`
	Next      string `json:"next"`
	Timestamp int64  `json:"timestamp"`
}

// AlarmMessage is published on <module>.alarm.<tag> on every alarm
// level transition, trigger or clear alike (Level == "None" is a
// clear).
type AlarmMessage struct {
	ModuleID  string  `json:"moduleId"`
	Tag       string  `json:"tag"`
	Level     string  `json:"level"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
}

// ReadRequestMsg/ReadResponseMsg back the <module>.read request/reply
// subject.
type ReadRequestMsg struct {
	Tag       string `json:"tag"`
	TimeoutMS int    `json:"timeoutMs,omitempty"`
}

type ReadResponseMsg struct {
	Tag   string      `json:"tag"`
	Value interface{} `json:"value,omitempty"`
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
}

// WriteRequestMsg/WriteResponseMsg back the <module>.write request/
// reply subject.
type WriteRequestMsg struct {
	Tag       string      `json:"tag"`
	Value     interface{} `json:"value"`
	TimeoutMS int         `json:"timeoutMs,omitempty"`
}

type WriteResponseMsg struct {
	Tag   string `json:"tag"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// BrowseRequestMsg/BrowseResponseMsg back the <module>.browse request/
// reply subject.
type BrowseRequestMsg struct {
	StartNodeID string `json:"startNodeId,omitempty"`
	MaxDepth    int    `json:"maxDepth,omitempty"`
}

type BrowseResponseMsg struct {
	Variables []browse.VariableInfo `json:"variables,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// ServiceHeartbeat is published every 10s to the service_heartbeats KV
// bucket, kept verbatim from the teacher's shape.
type ServiceHeartbeat struct {
	ServiceType string                 `json:"serviceType"`
	ModuleID    string                 `json:"moduleId"`
	LastSeen    int64                  `json:"lastSeen"`
	StartedAt   int64                  `json:"startedAt"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// sanitizeForSubject converts a tag name containing NodeId punctuation
// into a valid NATS subject token, same rule as the teacher's
// sanitizeNodeIDForSubject.
func sanitizeForSubject(s string) string {
	r := strings.NewReplacer(".", "_", ";", "_", "=", "_")
	return r.Replace(s)
}
