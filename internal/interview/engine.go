// Package interview implements the interview negotiation engine: the
// transition table, the note codec, the five transition operations and the
// employer-wide listing of interview entries.
package interview

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	apperrors "jobchaja-interviews/internal/common/errors"
	commonhttp "jobchaja-interviews/internal/common/http"
	"jobchaja-interviews/internal/common/logger"
	"jobchaja-interviews/internal/common/metrics"
	"jobchaja-interviews/internal/models"
)

// RecordStore is the application record store as the engine sees it.
type RecordStore interface {
	ListMyJobs(ctx context.Context, cred models.Credential) ([]models.Job, error)
	ListJobApplications(ctx context.Context, cred models.Credential, jobID string) ([]models.ApplicationRecord, error)
	UpdateStatus(ctx context.Context, cred models.Credential, applicationID string, update models.StatusUpdate) error
}

// EventPublisher announces committed transitions.
type EventPublisher interface {
	PublishTransition(ctx context.Context, event models.TransitionEvent) error
}

// AuditSink records committed transitions.
type AuditSink interface {
	RecordTransition(ctx context.Context, event models.TransitionEvent) error
}

// Cancel reasons offered to the employer.
const (
	CancelReasonScheduleChange = "일정 변경"
	CancelReasonPersonal       = "개인 사정"
	CancelReasonPositionClosed = "채용 마감"
	CancelReasonOther          = "기타"
)

var CancelReasons = []string{
	CancelReasonScheduleChange,
	CancelReasonPersonal,
	CancelReasonPositionClosed,
	CancelReasonOther,
}

type ProposeInput struct {
	Method      models.InterviewMethod `json:"method"`
	Slot1       string                 `json:"slot1"`
	Slot2       string                 `json:"slot2"`
	MeetingLink string                 `json:"meetingLink"`
	Address     string                 `json:"address"`
	Directions  string                 `json:"directions"`
	WhatToBring string                 `json:"whatToBring"`
}

type ResultInput struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// CancelInput carries a reason from CancelReasons or free text. Detail is
// required when Reason is CancelReasonOther and replaces it.
type CancelInput struct {
	Reason string `json:"reason"`
	Detail string `json:"detail"`
}

// TransitionResult is what a successful transition wrote to the store.
type TransitionResult struct {
	ApplicationID   string                 `json:"applicationId"`
	JobID           string                 `json:"jobId"`
	Operation       Operation              `json:"operation"`
	From            models.InterviewStatus `json:"from"`
	To              models.InterviewStatus `json:"to"`
	Note            *models.InterviewNote  `json:"note"`
	NoteText        string                 `json:"-"`
	InterviewDate   string                 `json:"interviewDate,omitempty"`
	RejectionReason string                 `json:"rejectionReason,omitempty"`
}

type Engine struct {
	store     RecordStore
	logger    logger.Logger
	publisher EventPublisher
	audit     AuditSink
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

type Option func(*Engine)

func WithEventPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithAuditSink(a AuditSink) Option {
	return func(e *Engine) { e.audit = a }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store RecordStore, log logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	e := &Engine{
		store:    store,
		logger:   log,
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Loader reads the current entry of one application.
type Loader func(ctx context.Context) (models.ApplicationEntry, error)

// Step is one transition, run against the entry a Loader returned.
type Step struct {
	Operation Operation
	run       func(ctx context.Context, entry models.ApplicationEntry) (*TransitionResult, error)
}

func (e *Engine) ProposeStep(cred models.Credential, in ProposeInput) Step {
	return Step{Operation: OpPropose, run: func(ctx context.Context, entry models.ApplicationEntry) (*TransitionResult, error) {
		return e.propose(ctx, cred, entry, in)
	}}
}

func (e *Engine) ConfirmStep(cred models.Credential, choice models.SlotChoice) Step {
	return Step{Operation: OpConfirm, run: func(ctx context.Context, entry models.ApplicationEntry) (*TransitionResult, error) {
		return e.confirm(ctx, cred, entry, choice)
	}}
}

func (e *Engine) ResultStep(cred models.Credential, in ResultInput) Step {
	op := OpReportFail
	if in.Passed {
		op = OpReportPass
	}
	return Step{Operation: op, run: func(ctx context.Context, entry models.ApplicationEntry) (*TransitionResult, error) {
		return e.reportResult(ctx, cred, entry, op, in)
	}}
}

func (e *Engine) CancelStep(cred models.Credential, in CancelInput) Step {
	return Step{Operation: OpCancel, run: func(ctx context.Context, entry models.ApplicationEntry) (*TransitionResult, error) {
		return e.cancel(ctx, cred, entry, in)
	}}
}

// Apply holds the application's in-flight slot while load reads the entry
// and step checks and writes it. A second Apply on the same application
// fails with TRANSITION_IN_FLIGHT until the first returns.
func (e *Engine) Apply(ctx context.Context, applicationID string, load Loader, step Step) (*TransitionResult, error) {
	if !e.acquire(applicationID) {
		return nil, e.reject(step.Operation, models.ApplicationEntry{ApplicationID: applicationID},
			apperrors.NewTransitionInFlightError(applicationID))
	}
	defer e.release(applicationID)

	entry, err := load(ctx)
	if err != nil {
		return nil, err
	}
	return step.run(ctx, entry)
}

func (e *Engine) applyTo(ctx context.Context, entry models.ApplicationEntry, step Step) (*TransitionResult, error) {
	return e.Apply(ctx, entry.ApplicationID, func(context.Context) (models.ApplicationEntry, error) {
		return entry, nil
	}, step)
}

// Propose starts a proposal round: a fresh note with two slots and the
// location detail matching the method. interviewDate becomes slot1.
func (e *Engine) Propose(ctx context.Context, cred models.Credential, entry models.ApplicationEntry, in ProposeInput) (*TransitionResult, error) {
	return e.applyTo(ctx, entry, e.ProposeStep(cred, in))
}

// Confirm fixes one of the two proposed slots. interviewDate becomes that slot.
func (e *Engine) Confirm(ctx context.Context, cred models.Credential, entry models.ApplicationEntry, choice models.SlotChoice) (*TransitionResult, error) {
	return e.applyTo(ctx, entry, e.ConfirmStep(cred, choice))
}

// ReportResult closes a confirmed interview as ACCEPTED or REJECTED. A
// rejection requires a message, which is also written as rejectionReason.
func (e *Engine) ReportResult(ctx context.Context, cred models.Credential, entry models.ApplicationEntry, in ResultInput) (*TransitionResult, error) {
	return e.applyTo(ctx, entry, e.ResultStep(cred, in))
}

// Cancel cancels on behalf of the employer. Every prior note field is kept.
func (e *Engine) Cancel(ctx context.Context, cred models.Credential, entry models.ApplicationEntry, in CancelInput) (*TransitionResult, error) {
	return e.applyTo(ctx, entry, e.CancelStep(cred, in))
}

func (e *Engine) propose(ctx context.Context, cred models.Credential, entry models.ApplicationEntry, in ProposeInput) (*TransitionResult, error) {
	to, err := Next(entry.Status, OpPropose)
	if err != nil {
		return nil, e.reject(OpPropose, entry, err)
	}

	note, err := buildProposal(entry.Note, in)
	if err != nil {
		return nil, e.reject(OpPropose, entry, err)
	}

	return e.commit(ctx, cred, entry, OpPropose, to, note, models.StatusUpdate{InterviewDate: note.Slot1})
}

func buildProposal(prior *models.InterviewNote, in ProposeInput) (*models.InterviewNote, error) {
	if err := requireUTF8(
		textField{"slot1", in.Slot1},
		textField{"slot2", in.Slot2},
		textField{"meetingLink", in.MeetingLink},
		textField{"address", in.Address},
		textField{"directions", in.Directions},
		textField{"whatToBring", in.WhatToBring},
	); err != nil {
		return nil, err
	}

	slot1 := strings.TrimSpace(in.Slot1)
	slot2 := strings.TrimSpace(in.Slot2)

	if slot1 == "" {
		return nil, apperrors.NewValidationError("slot1", "first-choice interview time is required")
	}
	if slot2 == "" {
		return nil, apperrors.NewValidationError("slot2", "second-choice interview time is required")
	}
	if _, err := ParseTimestamp(slot1); err != nil {
		return nil, apperrors.NewValidationError("slot1", "first-choice interview time is not a valid date and time")
	}
	if _, err := ParseTimestamp(slot2); err != nil {
		return nil, apperrors.NewValidationError("slot2", "second-choice interview time is not a valid date and time")
	}

	note := &models.InterviewNote{
		Method:      in.Method,
		Slot1:       slot1,
		Slot2:       slot2,
		Directions:  strings.TrimSpace(in.Directions),
		WhatToBring: strings.TrimSpace(in.WhatToBring),
	}

	switch in.Method {
	case models.MethodOnline:
		note.MeetingLink = strings.TrimSpace(in.MeetingLink)
		if note.MeetingLink == "" {
			return nil, apperrors.NewValidationError("meetingLink", "a meeting link is required for online interviews")
		}
	case models.MethodOffline:
		note.Address = strings.TrimSpace(in.Address)
		if note.Address == "" {
			return nil, apperrors.NewValidationError("address", "an address is required for offline interviews")
		}
	default:
		return nil, apperrors.NewValidationError("method", "interview method must be ONLINE or OFFLINE")
	}

	if prior != nil {
		note.ResultMessage = prior.ResultMessage
	}
	return note, nil
}

func (e *Engine) confirm(ctx context.Context, cred models.Credential, entry models.ApplicationEntry, choice models.SlotChoice) (*TransitionResult, error) {
	to, err := Next(entry.Status, OpConfirm)
	if err != nil {
		return nil, e.reject(OpConfirm, entry, err)
	}

	if choice != models.Slot1 && choice != models.Slot2 {
		return nil, e.reject(OpConfirm, entry,
			apperrors.NewValidationError("selectedSlot", "choose slot1 or slot2"))
	}
	if entry.Note == nil {
		return nil, e.reject(OpConfirm, entry, apperrors.NewNoteMissingError(entry.ApplicationID))
	}

	when := entry.Note.Slot(choice)
	if when == "" {
		return nil, e.reject(OpConfirm, entry,
			apperrors.NewValidationError("selectedSlot", "the chosen slot has no proposed time"))
	}

	note := entry.Note.Clone()
	note.SelectedSlot = &choice

	return e.commit(ctx, cred, entry, OpConfirm, to, note, models.StatusUpdate{InterviewDate: when})
}

func (e *Engine) reportResult(ctx context.Context, cred models.Credential, entry models.ApplicationEntry, op Operation, in ResultInput) (*TransitionResult, error) {
	to, err := Next(entry.Status, op)
	if err != nil {
		return nil, e.reject(op, entry, err)
	}

	if err := requireUTF8(textField{"resultMessage", in.Message}); err != nil {
		return nil, e.reject(op, entry, err)
	}
	msg := strings.TrimSpace(in.Message)
	if !in.Passed && msg == "" {
		return nil, e.reject(op, entry,
			apperrors.NewValidationError("resultMessage", "a rejection reason is required"))
	}

	note := entry.Note.Clone()
	if note == nil {
		note = &models.InterviewNote{}
	}
	note.ResultMessage = msg

	update := models.StatusUpdate{}
	if !in.Passed {
		update.RejectionReason = msg
	}
	return e.commit(ctx, cred, entry, op, to, note, update)
}

func (e *Engine) cancel(ctx context.Context, cred models.Credential, entry models.ApplicationEntry, in CancelInput) (*TransitionResult, error) {
	to, err := Next(entry.Status, OpCancel)
	if err != nil {
		return nil, e.reject(OpCancel, entry, err)
	}

	reason, err := ResolveCancelReason(in)
	if err != nil {
		return nil, e.reject(OpCancel, entry, err)
	}

	note := entry.Note.Clone()
	if note == nil {
		note = &models.InterviewNote{}
	}
	by := models.CancelledByEmployer
	note.CancelledBy = &by
	note.CancelReason = &reason

	return e.commit(ctx, cred, entry, OpCancel, to, note, models.StatusUpdate{})
}

// ResolveCancelReason returns the reason text to store.
func ResolveCancelReason(in CancelInput) (string, error) {
	if err := requireUTF8(textField{"cancelReason", in.Reason}, textField{"cancelReason", in.Detail}); err != nil {
		return "", err
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return "", apperrors.NewValidationError("cancelReason", "a cancellation reason is required")
	}
	if reason == CancelReasonOther {
		detail := strings.TrimSpace(in.Detail)
		if detail == "" {
			return "", apperrors.NewValidationError("cancelReason", "describe the cancellation reason")
		}
		return detail, nil
	}
	return reason, nil
}

type textField struct {
	name, value string
}

// requireUTF8 refuses text the note codec could not store byte for byte.
func requireUTF8(fields ...textField) error {
	for _, f := range fields {
		if !utf8.ValidString(f.value) {
			return apperrors.NewValidationError(f.name, "text must be valid UTF-8")
		}
	}
	return nil
}

func (e *Engine) commit(ctx context.Context, cred models.Credential, entry models.ApplicationEntry, op Operation, to models.InterviewStatus, note *models.InterviewNote, update models.StatusUpdate) (*TransitionResult, error) {
	appID := entry.ApplicationID

	text, err := EncodeNote(note)
	if err != nil {
		return nil, e.reject(op, entry, apperrors.NewNoteEncodeFailedError(err))
	}
	update.Status = to
	update.InterviewNote = text

	metrics.TransitionsInFlight.Inc()
	err = e.store.UpdateStatus(ctx, cred, appID, update)
	metrics.TransitionsInFlight.Dec()
	if err != nil {
		metrics.TransitionsTotal.WithLabelValues(string(op), metrics.OutcomeStoreError).Inc()
		e.logger.Warn("interview transition failed at record store", map[string]interface{}{
			"application_id": appID,
			"operation":      string(op),
			"from":           string(entry.Status),
			"to":             string(to),
			"error":          err,
		})
		return nil, err
	}

	interviewDate := update.InterviewDate
	if interviewDate == "" {
		interviewDate = entry.InterviewDate
	}
	result := &TransitionResult{
		ApplicationID:   appID,
		JobID:           entry.JobID,
		Operation:       op,
		From:            entry.Status,
		To:              to,
		Note:            note,
		NoteText:        text,
		InterviewDate:   interviewDate,
		RejectionReason: update.RejectionReason,
	}

	metrics.TransitionsTotal.WithLabelValues(string(op), metrics.OutcomeSuccess).Inc()
	e.logger.Info("interview transition committed", map[string]interface{}{
		"application_id": appID,
		"job_id":         entry.JobID,
		"operation":      string(op),
		"from":           string(entry.Status),
		"to":             string(to),
	})

	e.announce(ctx, result)
	return result, nil
}

// announce runs the best-effort side effects of a committed transition.
func (e *Engine) announce(ctx context.Context, result *TransitionResult) {
	if e.publisher == nil && e.audit == nil {
		return
	}

	event := models.TransitionEvent{
		RequestID:     commonhttp.RequestIDFromContext(ctx),
		ApplicationID: result.ApplicationID,
		JobID:         result.JobID,
		Operation:     string(result.Operation),
		From:          result.From,
		To:            result.To,
		NoteText:      result.NoteText,
		At:            e.now().UTC(),
	}

	if e.publisher != nil {
		if err := e.publisher.PublishTransition(ctx, event); err != nil {
			e.logger.Warn("failed to publish interview transition event", map[string]interface{}{
				"application_id": event.ApplicationID,
				"operation":      event.Operation,
				"error":          err,
			})
		}
	}
	if e.audit != nil {
		if err := e.audit.RecordTransition(ctx, event); err != nil {
			e.logger.Warn("failed to record interview transition audit", map[string]interface{}{
				"application_id": event.ApplicationID,
				"operation":      event.Operation,
				"error":          err,
			})
		}
	}
}

func (e *Engine) reject(op Operation, entry models.ApplicationEntry, err error) error {
	outcome := metrics.OutcomeRejected
	if apperrors.GetErrorCategory(apperrors.AsStandard(err).Code) == "VALIDATION" {
		outcome = metrics.OutcomeValidation
	}
	metrics.TransitionsTotal.WithLabelValues(string(op), outcome).Inc()
	e.logger.Debug("interview transition refused", map[string]interface{}{
		"application_id": entry.ApplicationID,
		"operation":      string(op),
		"status":         string(entry.Status),
		"error":          err,
	})
	return err
}

func (e *Engine) acquire(appID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[appID]; busy {
		return false
	}
	e.inFlight[appID] = struct{}{}
	return true
}

func (e *Engine) release(appID string) {
	e.mu.Lock()
	delete(e.inFlight, appID)
	e.mu.Unlock()
}
