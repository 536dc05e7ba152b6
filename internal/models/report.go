package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusAssigned   Status = "ASSIGNED"
	StatusProcessing Status = "PROCESSING"
	StatusBlocked    Status = "BLOCKED"
	StatusClosed     Status = "CLOSED"

	// legacy two-state model
	statusOpened Status = "OPENED"
)

var Statuses = []Status{StatusCreated, StatusAssigned, StatusProcessing, StatusBlocked, StatusClosed}

// ParseStatus accepts the symbolic names stored in the report tables.
// OPENED from the two-state model maps to CREATED.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if st == statusOpened {
		return StatusCreated, nil
	}
	for _, known := range Statuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("неизвестный статус жалобы: %q", s)
}

func (s Status) Terminal() bool { return s == StatusClosed }

type ReportKind string

const (
	ReportKindPost ReportKind = "post"
	ReportKindUser ReportKind = "user"
)

func ParseReportKind(s string) (ReportKind, error) {
	switch ReportKind(strings.ToLower(strings.TrimSpace(s))) {
	case ReportKindPost:
		return ReportKindPost, nil
	case ReportKindUser:
		return ReportKindUser, nil
	}
	return "", fmt.Errorf("неизвестный тип жалобы: %q", s)
}

// ReportKey identifies a report. Post and user reports live in separate
// tables with separate id sequences, so the id alone is ambiguous.
type ReportKey struct {
	Kind ReportKind `json:"kind" yaml:"kind"`
	ID   int64      `json:"id" yaml:"id"`
}

func (k ReportKey) String() string {
	return fmt.Sprintf("%s-report:%d", k.Kind, k.ID)
}

// ParseReportKey parses "post:7" or "user:3".
func ParseReportKey(s string) (ReportKey, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok {
		return ReportKey{}, fmt.Errorf("неверный формат ключа жалобы %q, ожидается kind:id", s)
	}
	k, err := ParseReportKind(kind)
	if err != nil {
		return ReportKey{}, err
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return ReportKey{}, fmt.Errorf("неверный id жалобы %q", id)
	}
	return ReportKey{Kind: k, ID: n}, nil
}

// Target is the reported entity: a post for post reports, an account for user reports.
type Target struct {
	Kind ReportKind `json:"kind" yaml:"kind"`
	ID   int64      `json:"id" yaml:"id"`
}

// EntityKey returns the lock/ordering key of the reported entity.
func (t Target) EntityKey() string {
	if t.Kind == ReportKindPost {
		return PostKey(t.ID)
	}
	return UserKey(t.ID)
}

type Report struct {
	ID           int64     `json:"id" yaml:"id"`
	ReporterID   int64     `json:"reporterId" yaml:"reporterId"`
	Reason       string    `json:"reason" yaml:"reason"`
	Status       Status    `json:"status" yaml:"status"`
	DateReported time.Time `json:"dateReported" yaml:"dateReported"`
	// 0 while the report sits in the unassigned pool
	AdminID int64  `json:"adminId,omitempty" yaml:"adminId,omitempty"`
	Target  Target `json:"target" yaml:"target"`
}

func (r *Report) Key() ReportKey {
	return ReportKey{Kind: r.Target.Kind, ID: r.ID}
}

func (r *Report) Closed() bool { return r.Status.Terminal() }

func (r *Report) Clone() *Report {
	c := *r
	return &c
}
