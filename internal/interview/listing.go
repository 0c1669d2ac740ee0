package interview

import (
	"context"
	"sort"
	"strings"
	"time"

	apperrors "jobchaja-interviews/internal/common/errors"
	"jobchaja-interviews/internal/common/logger"
	"jobchaja-interviews/internal/common/metrics"
	"jobchaja-interviews/internal/models"

	"golang.org/x/sync/errgroup"
)

// Group is a named view over interview statuses.
type Group string

const (
	GroupAll       Group = "all"
	GroupProposed  Group = "proposed"
	GroupConfirmed Group = "confirmed"
	GroupCompleted Group = "completed"
	GroupCancelled Group = "cancelled"
)

var Groups = []Group{GroupAll, GroupProposed, GroupConfirmed, GroupCompleted, GroupCancelled}

var groupStatuses = map[Group][]models.InterviewStatus{
	GroupAll:       models.InterviewStatuses,
	GroupProposed:  {models.StatusInterviewRequested, models.StatusCoordinationNeeded},
	GroupConfirmed: {models.StatusConfirmed},
	GroupCompleted: {models.StatusAccepted, models.StatusRejected},
	GroupCancelled: {models.StatusCancelled},
}

// ParseGroup parses a view name; empty selects GroupAll.
func ParseGroup(s string) (Group, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return GroupAll, nil
	}
	g := Group(s)
	if _, ok := groupStatuses[g]; !ok {
		return "", apperrors.NewValidationError("group", "unknown interview group: "+s)
	}
	return g, nil
}

func (g Group) Includes(s models.InterviewStatus) bool {
	for _, st := range groupStatuses[g] {
		if st == s {
			return true
		}
	}
	return false
}

// Filter keeps the entries of group g, preserving order.
func Filter(entries []models.ApplicationEntry, g Group) []models.ApplicationEntry {
	out := make([]models.ApplicationEntry, 0, len(entries))
	for _, e := range entries {
		if g.Includes(e.Status) {
			out = append(out, e)
		}
	}
	return out
}

// CountByGroup counts every group over the full entry list.
func CountByGroup(entries []models.ApplicationEntry) map[Group]int {
	counts := make(map[Group]int, len(Groups))
	for _, g := range Groups {
		counts[g] = 0
	}
	for _, e := range entries {
		for _, g := range Groups {
			if g.Includes(e.Status) {
				counts[g]++
			}
		}
	}
	return counts
}

// NewEntry builds the read model of rec under job.
func NewEntry(job models.Job, rec models.ApplicationRecord) models.ApplicationEntry {
	return models.ApplicationEntry{
		ApplicationID:   rec.ID.String(),
		ApplicantID:     rec.ApplicantID.String(),
		JobID:           job.ID.String(),
		JobTitle:        job.Title,
		Status:          models.InterviewStatus(rec.Status),
		Note:            DecodeNote(string(rec.InterviewNote)),
		InterviewDate:   rec.InterviewDate,
		CreatedAt:       rec.CreatedAt,
		RejectionReason: rec.RejectionReason,
		ApplicantName:   rec.Applicant.RealName,
		Nationality:     rec.Applicant.Nationality,
		VisaType:        rec.Applicant.VisaType,
	}
}

// SortEntries orders entries newest first by interviewDate, falling back to
// createdAt. Entries with no usable timestamp go last; ties keep their order.
func SortEntries(entries []models.ApplicationEntry) {
	keys := make([]time.Time, len(entries))
	for i, e := range entries {
		keys[i] = effectiveTime(e)
	}
	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka.IsZero() || kb.IsZero() {
			return !ka.IsZero() && kb.IsZero()
		}
		return ka.After(kb)
	})

	sorted := make([]models.ApplicationEntry, len(entries))
	for i, j := range idx {
		sorted[i] = entries[j]
	}
	copy(entries, sorted)
}

func effectiveTime(e models.ApplicationEntry) time.Time {
	if e.InterviewDate != "" {
		if t, err := ParseTimestamp(e.InterviewDate); err == nil {
			return t
		}
	}
	if t, err := ParseTimestamp(e.CreatedAt); err == nil {
		return t
	}
	return time.Time{}
}

// Aggregator builds an employer's interview entries across all their jobs.
type Aggregator struct {
	store         RecordStore
	logger        logger.Logger
	maxConcurrent int
}

// NewAggregator creates an Aggregator. maxConcurrent <= 0 means no limit on
// parallel per-job fetches.
func NewAggregator(store RecordStore, log logger.Logger, maxConcurrent int) *Aggregator {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Aggregator{store: store, logger: log, maxConcurrent: maxConcurrent}
}

// Load fetches every job of the employer and their interview-stage
// applications. Only a job-list failure fails the load; a failing job
// contributes no entries.
func (a *Aggregator) Load(ctx context.Context, cred models.Credential) ([]models.ApplicationEntry, error) {
	jobs, err := a.store.ListMyJobs(ctx, cred)
	if err != nil {
		metrics.ListingLoadsTotal.WithLabelValues(metrics.OutcomeStoreError).Inc()
		a.logger.Error("failed to fetch employer job list", map[string]interface{}{"error": err})
		return nil, apperrors.NewJobListFetchFailedError(err)
	}

	perJob := make([][]models.ApplicationEntry, len(jobs))

	// A plain Group: one job's failure must not cancel its siblings.
	var g errgroup.Group
	if a.maxConcurrent > 0 {
		g.SetLimit(a.maxConcurrent)
	}
	for i, job := range jobs {
		g.Go(func() error {
			records, err := a.store.ListJobApplications(ctx, cred, job.ID.String())
			if err != nil {
				metrics.ListingJobFetchFailures.Inc()
				a.logger.Warn("failed to fetch job applications, skipping job", map[string]interface{}{
					"job_id": job.ID.String(),
					"error":  err,
				})
				return nil
			}

			kept := make([]models.ApplicationEntry, 0, len(records))
			for _, rec := range records {
				if !IsInterviewStatus(models.InterviewStatus(rec.Status)) {
					continue
				}
				kept = append(kept, NewEntry(job, rec))
			}
			perJob[i] = kept
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.logger.Warn("per-job application fetch aborted", map[string]interface{}{"error": err})
	}

	entries := make([]models.ApplicationEntry, 0)
	for _, kept := range perJob {
		entries = append(entries, kept...)
	}
	SortEntries(entries)

	metrics.ListingLoadsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	metrics.ListingEntries.Observe(float64(len(entries)))
	a.logger.Debug("interview entries loaded", map[string]interface{}{
		"jobs":    len(jobs),
		"entries": len(entries),
	})
	return entries, nil
}

// Find returns the entry of one application under jobID, whatever its status.
func (a *Aggregator) Find(ctx context.Context, cred models.Credential, jobID, applicationID string) (models.ApplicationEntry, error) {
	records, err := a.store.ListJobApplications(ctx, cred, jobID)
	if err != nil {
		return models.ApplicationEntry{}, err
	}
	for _, rec := range records {
		if rec.ID.String() == applicationID {
			return NewEntry(models.Job{ID: models.ID(jobID)}, rec), nil
		}
	}
	return models.ApplicationEntry{}, apperrors.NewResourceNotFoundError("application",
		"application "+applicationID+" not found under job "+jobID)
}
