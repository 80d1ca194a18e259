// Package anomaly scans recent access logs for suspicion patterns. The
// triggers are independent: any subset may fire at once, and there is no
// composite score.
package anomaly

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mehra/filevault-backend/config"
	"github.com/mehra/filevault-backend/storage"
)

const defaultWindowHours = 24

type Report struct {
	IsSuspicious  bool     `json:"isSuspicious"`
	Reasons       []string `json:"reasons"`
	AccessCount   int      `json:"accessCount"`
	UniqueIPCount int      `json:"uniqueIpCount"`
	FailedCount   int      `json:"failedCount"`
	WindowHours   int      `json:"windowHours"`
}

type Detector struct {
	logs       storage.AccessLogStore
	thresholds config.AnomalyThresholds
	now        func() time.Time
}

func NewDetector(logs storage.AccessLogStore, thresholds config.AnomalyThresholds) *Detector {
	return &Detector{logs: logs, thresholds: thresholds, now: time.Now}
}

// WithClock overrides the detector clock. Tests only.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Detect pulls all entries for the file within the trailing window and
// evaluates each trigger.
func (d *Detector) Detect(ctx context.Context, fileID uuid.UUID, windowHours int) (*Report, error) {
	if windowHours <= 0 {
		windowHours = defaultWindowHours
	}
	since := d.now().Add(-time.Duration(windowHours) * time.Hour)
	entries, err := d.logs.GetAccessLogsSince(ctx, fileID, since)
	if err != nil {
		return nil, err
	}

	uniqueIPs := make(map[string]struct{})
	failed := 0
	for _, entry := range entries {
		if entry.IPAddress != "" && entry.IPAddress != "unknown" {
			uniqueIPs[entry.IPAddress] = struct{}{}
		}
		if !entry.Success {
			failed++
		}
	}
	total := len(entries)

	report := &Report{
		Reasons:       []string{},
		AccessCount:   total,
		UniqueIPCount: len(uniqueIPs),
		FailedCount:   failed,
		WindowHours:   windowHours,
	}

	if total > d.thresholds.MaxAccessCount {
		report.Reasons = append(report.Reasons, "unusually high access volume")
	}
	if len(uniqueIPs) > d.thresholds.MaxUniqueIPs {
		report.Reasons = append(report.Reasons, "accessed from many distinct addresses")
	}
	if failed > d.thresholds.MaxFailures {
		report.Reasons = append(report.Reasons, "many failed access attempts")
	}
	// The sample-size guard keeps a single failure out of one attempt from
	// flagging the file.
	if total > d.thresholds.MinSampleSize &&
		float64(failed)/float64(total) > d.thresholds.MaxFailureRatio {
		report.Reasons = append(report.Reasons, "high failure rate")
	}

	report.IsSuspicious = len(report.Reasons) > 0
	return report, nil
}
