package interview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "jobchaja-interviews/internal/common/errors"
	"jobchaja-interviews/internal/common/logger"
	"jobchaja-interviews/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var cred = models.Credential{Token: "employer-token"}

const (
	t1 = "2026-02-01T10:00Z"
	t2 = "2026-02-02T10:00Z"
)

func newTestEngine(t *testing.T, store *fakeStore, opts ...Option) *Engine {
	t.Helper()
	return NewEngine(store, logger.NewTestLogger(t), opts...)
}

func onlineProposal() ProposeInput {
	return ProposeInput{
		Method:      models.MethodOnline,
		Slot1:       t1,
		Slot2:       t2,
		MeetingLink: "https://zoom.us/1",
	}
}

func entryWith(status models.InterviewStatus, note *models.InterviewNote) models.ApplicationEntry {
	return models.ApplicationEntry{
		ApplicationID: "app-1",
		ApplicantID:   "user-1",
		JobID:         "job-1",
		JobTitle:      "용접공",
		Status:        status,
		Note:          note,
	}
}

// apply turns a result back into the entry a re-fetch would return.
func apply(entry models.ApplicationEntry, res *TransitionResult) models.ApplicationEntry {
	entry.Status = res.To
	entry.Note = DecodeNote(res.NoteText)
	entry.InterviewDate = res.InterviewDate
	if res.RejectionReason != "" {
		entry.RejectionReason = res.RejectionReason
	}
	return entry
}

func confirmedEntry(choice models.SlotChoice) models.ApplicationEntry {
	e := entryWith(models.StatusConfirmed, &models.InterviewNote{
		Method:       models.MethodOnline,
		Slot1:        t1,
		Slot2:        t2,
		MeetingLink:  "https://zoom.us/1",
		SelectedSlot: slotPtr(choice),
	})
	e.InterviewDate = e.Note.Slot(choice)
	return e
}

// ==========================
// Scenarios
// ==========================

func TestEngine_HappyPath(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	ctx := context.Background()

	entry := entryWith(models.StatusCoordinationNeeded, nil)

	res, err := engine.Propose(ctx, cred, entry, onlineProposal())
	require.NoError(t, err)
	assert.Equal(t, models.StatusInterviewRequested, res.To)
	assert.Equal(t, t1, res.InterviewDate)
	entry = apply(entry, res)

	res, err = engine.Confirm(ctx, cred, entry, models.Slot1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, res.To)
	assert.Equal(t, t1, res.InterviewDate)
	entry = apply(entry, res)

	res, err = engine.ReportResult(ctx, cred, entry, ResultInput{Passed: true, Message: "출근일 안내"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, res.To)
	assert.Equal(t, "출근일 안내", res.Note.ResultMessage)
	assert.Empty(t, res.RejectionReason)

	calls := store.calls()
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Equal(t, "app-1", c.ApplicationID)
		assert.Equal(t, cred.Token, c.Token)
		assert.NotEmpty(t, c.Update.Status)
		assert.NotNil(t, DecodeNote(c.Update.InterviewNote), "every update carries a full note")
	}
	assert.Equal(t, t1, calls[0].Update.InterviewDate)
	assert.Equal(t, t1, calls[1].Update.InterviewDate)
	assert.Empty(t, calls[2].Update.InterviewDate)
	assert.Empty(t, calls[2].Update.RejectionReason)
}

func TestEngine_RejectionPath(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	ctx := context.Background()

	entry := entryWith(models.StatusCoordinationNeeded, nil)
	res, err := engine.Propose(ctx, cred, entry, onlineProposal())
	require.NoError(t, err)
	entry = apply(entry, res)

	res, err = engine.Confirm(ctx, cred, entry, models.Slot2)
	require.NoError(t, err)
	assert.Equal(t, t2, res.InterviewDate)
	entry = apply(entry, res)

	res, err = engine.ReportResult(ctx, cred, entry, ResultInput{Passed: false, Message: "직무 불일치"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, res.To)
	assert.Equal(t, "직무 불일치", res.RejectionReason)
	assert.Equal(t, "직무 불일치", res.Note.ResultMessage)

	calls := store.calls()
	require.Len(t, calls, 3)
	last := calls[2].Update
	assert.Equal(t, models.StatusRejected, last.Status)
	assert.Equal(t, "직무 불일치", last.RejectionReason)
	assert.Equal(t, "직무 불일치", DecodeNote(last.InterviewNote).ResultMessage)
}

func TestEngine_RejectionReasonPropagation(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)

	res, err := engine.ReportResult(context.Background(), cred, confirmedEntry(models.Slot1),
		ResultInput{Passed: false, Message: "  저조한 역량 "})
	require.NoError(t, err)

	update := store.calls()[0].Update
	assert.Equal(t, "저조한 역량", update.RejectionReason)
	assert.Equal(t, "저조한 역량", DecodeNote(update.InterviewNote).ResultMessage)
	assert.Equal(t, "저조한 역량", res.RejectionReason)
}

func TestEngine_CancellationPreservesHistory(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)

	entry := confirmedEntry(models.Slot1)
	entry.Note.Directions = "정문 경비실"
	res, err := engine.Cancel(context.Background(), cred, entry, CancelInput{Reason: "일정 변경"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, res.To)

	decoded := DecodeNote(store.calls()[0].Update.InterviewNote)
	require.NotNil(t, decoded)
	require.NotNil(t, decoded.SelectedSlot)
	assert.Equal(t, models.Slot1, *decoded.SelectedSlot)
	assert.Equal(t, t1, decoded.Slot1)
	assert.Equal(t, t2, decoded.Slot2)
	assert.Equal(t, "https://zoom.us/1", decoded.MeetingLink)
	assert.Equal(t, "정문 경비실", decoded.Directions)
	require.NotNil(t, decoded.CancelledBy)
	assert.Equal(t, models.CancelledByEmployer, *decoded.CancelledBy)
	require.NotNil(t, decoded.CancelReason)
	assert.Equal(t, "일정 변경", *decoded.CancelReason)

	// decoding again yields the same cancellation metadata
	again := DecodeNote(res.NoteText)
	assert.Equal(t, decoded, again)

	// nothing is defined on CANCELLED
	cancelled := apply(entry, res)
	assert.Empty(t, AllowedOperations(cancelled.Status))
	_, err = engine.Confirm(context.Background(), cred, cancelled, models.Slot1)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidTransition))
	assert.Len(t, store.calls(), 1)
}

func TestEngine_ProposeOfflineWithoutAddressIsRejectedLocally(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)

	entry := entryWith(models.StatusCoordinationNeeded, nil)
	_, err := engine.Propose(context.Background(), cred, entry, ProposeInput{
		Method:  models.MethodOffline,
		Slot1:   t1,
		Slot2:   t2,
		Address: "",
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))
	assert.Equal(t, "address", apperrors.AsStandard(err).Field())
	assert.Empty(t, store.calls())
	assert.Equal(t, models.StatusCoordinationNeeded, entry.Status)
}

// ==========================
// Propose
// ==========================

func TestEngine_Propose_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    ProposeInput
		field string
	}{
		{"missing slot1", ProposeInput{Method: models.MethodOnline, Slot2: t2, MeetingLink: "x"}, "slot1"},
		{"missing slot2", ProposeInput{Method: models.MethodOnline, Slot1: t1, MeetingLink: "x"}, "slot2"},
		{"blank slot1", ProposeInput{Method: models.MethodOnline, Slot1: "  ", Slot2: t2, MeetingLink: "x"}, "slot1"},
		{"unparseable slot2", ProposeInput{Method: models.MethodOnline, Slot1: t1, Slot2: "next monday", MeetingLink: "x"}, "slot2"},
		{"online without link", ProposeInput{Method: models.MethodOnline, Slot1: t1, Slot2: t2, Address: "Seoul"}, "meetingLink"},
		{"offline without address", ProposeInput{Method: models.MethodOffline, Slot1: t1, Slot2: t2, MeetingLink: "x"}, "address"},
		{"unknown method", ProposeInput{Method: "PHONE", Slot1: t1, Slot2: t2, MeetingLink: "x"}, "method"},
		{"missing method", ProposeInput{Slot1: t1, Slot2: t2, MeetingLink: "x"}, "method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			engine := newTestEngine(t, store)

			_, err := engine.Propose(context.Background(), cred, entryWith(models.StatusCoordinationNeeded, nil), tt.in)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))
			assert.Equal(t, tt.field, apperrors.AsStandard(err).Field())
			assert.NotEmpty(t, apperrors.UserMessage(err))
			assert.Empty(t, store.calls())
		})
	}
}

func TestEngine_Propose_MethodFieldExclusivity(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)

	online := onlineProposal()
	online.Address = "should be dropped"
	res, err := engine.Propose(context.Background(), cred, entryWith(models.StatusCoordinationNeeded, nil), online)
	require.NoError(t, err)
	assert.Equal(t, "https://zoom.us/1", res.Note.MeetingLink)
	assert.Empty(t, res.Note.Address)

	res, err = engine.Propose(context.Background(), cred, entryWith(models.StatusCoordinationNeeded, nil), ProposeInput{
		Method:      models.MethodOffline,
		Slot1:       t1,
		Slot2:       t2,
		MeetingLink: "https://zoom.us/should-drop",
		Address:     "서울시 중구",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Note.MeetingLink)
	assert.Equal(t, "서울시 중구", res.Note.Address)
}

func TestEngine_Propose_ResetsNegotiationButKeepsResultMessage(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)

	prior := &models.InterviewNote{
		Method:        models.MethodOffline,
		Slot1:         "2026-01-01T09:00Z",
		Slot2:         "2026-01-02T09:00Z",
		Address:       "old",
		SelectedSlot:  slotPtr(models.Slot2),
		CancelledBy:   partyPtr(models.CancelledByApplicant),
		CancelReason:  strPtr("개인 사정"),
		ResultMessage: "이전 안내",
	}
	entry := entryWith(models.StatusCoordinationNeeded, prior)

	res, err := engine.Propose(context.Background(), cred, entry, onlineProposal())
	require.NoError(t, err)

	assert.Nil(t, res.Note.SelectedSlot)
	assert.Nil(t, res.Note.CancelledBy)
	assert.Nil(t, res.Note.CancelReason)
	assert.Equal(t, "이전 안내", res.Note.ResultMessage)
	assert.Equal(t, t1, res.Note.Slot1)

	// the caller's entry is untouched
	assert.Equal(t, models.Slot2, *entry.Note.SelectedSlot)
	assert.Equal(t, "old", entry.Note.Address)
}

func TestEngine_Propose_FromEarlierStage(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)

	res, err := engine.Propose(context.Background(), cred, entryWith("DOCUMENT_PASSED", nil), onlineProposal())
	require.NoError(t, err)
	assert.Equal(t, models.InterviewStatus("DOCUMENT_PASSED"), res.From)
	assert.Equal(t, models.StatusInterviewRequested, res.To)
}

func TestEngine_Propose_NotAllowedWhileRequested(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)

	_, err := engine.Propose(context.Background(), cred, entryWith(models.StatusInterviewRequested, nil), onlineProposal())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidTransition))
	assert.Empty(t, store.calls())
}

// ==========================
// Confirm
// ==========================

func TestEngine_Confirm(t *testing.T) {
	requested := func() models.ApplicationEntry {
		e := entryWith(models.StatusInterviewRequested, &models.InterviewNote{
			Method: models.MethodOnline, Slot1: t1, Slot2: t2, MeetingLink: "https://zoom.us/1",
		})
		e.InterviewDate = t1
		return e
	}

	t.Run("slot1", func(t *testing.T) {
		engine := newTestEngine(t, newFakeStore())
		res, err := engine.Confirm(context.Background(), cred, requested(), models.Slot1)
		require.NoError(t, err)
		assert.Equal(t, models.Slot1, *res.Note.SelectedSlot)
		assert.Equal(t, t1, res.InterviewDate)
	})

	t.Run("slot2", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		entry := requested()
		res, err := engine.Confirm(context.Background(), cred, entry, models.Slot2)
		require.NoError(t, err)
		assert.Equal(t, models.Slot2, *res.Note.SelectedSlot)
		assert.Equal(t, t2, res.InterviewDate)
		assert.Equal(t, t2, store.calls()[0].Update.InterviewDate)
		assert.Nil(t, entry.Note.SelectedSlot)
	})

	t.Run("invalid choice", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		_, err := engine.Confirm(context.Background(), cred, requested(), "slot3")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))
		assert.Empty(t, store.calls())
	})

	t.Run("missing note", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		_, err := engine.Confirm(context.Background(), cred, entryWith(models.StatusInterviewRequested, nil), models.Slot1)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNoteMissing))
		assert.Empty(t, store.calls())
	})

	t.Run("chosen slot empty", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		entry := entryWith(models.StatusInterviewRequested, &models.InterviewNote{Method: models.MethodOnline, Slot1: t1})
		_, err := engine.Confirm(context.Background(), cred, entry, models.Slot2)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))
		assert.Empty(t, store.calls())
	})
}

// ==========================
// Report result
// ==========================

func TestEngine_ReportResult(t *testing.T) {
	t.Run("pass without message", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		res, err := engine.ReportResult(context.Background(), cred, confirmedEntry(models.Slot1), ResultInput{Passed: true})
		require.NoError(t, err)
		assert.Equal(t, models.StatusAccepted, res.To)
		assert.Equal(t, "", res.Note.ResultMessage)
		require.NotNil(t, res.Note.SelectedSlot)
		assert.Equal(t, t1, res.InterviewDate, "interview date is carried over")
	})

	t.Run("fail requires message", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		_, err := engine.ReportResult(context.Background(), cred, confirmedEntry(models.Slot1), ResultInput{Passed: false, Message: "   "})
		require.Error(t, err)
		assert.Equal(t, "resultMessage", apperrors.AsStandard(err).Field())
		assert.Empty(t, store.calls())
	})

	t.Run("not confirmed", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		_, err := engine.ReportResult(context.Background(), cred, entryWith(models.StatusInterviewRequested, nil), ResultInput{Passed: true})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidTransition))
		assert.Empty(t, store.calls())
	})

	t.Run("missing note starts empty", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		res, err := engine.ReportResult(context.Background(), cred, entryWith(models.StatusConfirmed, nil), ResultInput{Passed: false, Message: "불합격"})
		require.NoError(t, err)
		assert.Equal(t, "불합격", res.Note.ResultMessage)
		assert.NotNil(t, DecodeNote(res.NoteText))
	})
}

func TestEngine_Apply_HoldsSlotWhileLoading(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)

	loading := make(chan struct{})
	proceed := make(chan struct{})
	slowLoad := func(ctx context.Context) (models.ApplicationEntry, error) {
		close(loading)
		<-proceed
		return confirmedEntry(models.Slot1), nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := engine.Apply(context.Background(), "app-1", slowLoad, engine.ResultStep(cred, ResultInput{Message: "직무 불일치"}))
		done <- err
	}()
	<-loading

	loaded := false
	_, err := engine.Apply(context.Background(), "app-1", func(ctx context.Context) (models.ApplicationEntry, error) {
		loaded = true
		return confirmedEntry(models.Slot1), nil
	}, engine.ResultStep(cred, ResultInput{Passed: true}))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTransitionInFlight))
	assert.False(t, loaded)

	close(proceed)
	require.NoError(t, <-done)

	calls := store.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, models.StatusRejected, calls[0].Update.Status)
}

func TestEngine_Apply_LoadErrorIsReturned(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)

	notFound := apperrors.NewResourceNotFoundError("application", "app-1")
	_, err := engine.Apply(context.Background(), "app-1", func(ctx context.Context) (models.ApplicationEntry, error) {
		return models.ApplicationEntry{}, notFound
	}, engine.CancelStep(cred, CancelInput{Reason: CancelReasonPersonal}))
	assert.ErrorIs(t, err, notFound)
	assert.Empty(t, store.calls())

	// the slot is released after a failed load
	res, err := engine.Cancel(context.Background(), cred, confirmedEntry(models.Slot1), CancelInput{Reason: CancelReasonPersonal})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, res.To)
}

func TestEngine_RejectsInvalidUTF8(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	bad := "회의실 \xff"

	in := onlineProposal()
	in.Directions = bad
	_, err := engine.Propose(context.Background(), cred, entryWith(models.StatusCoordinationNeeded, nil), in)
	require.Error(t, err)
	assert.Equal(t, "directions", apperrors.AsStandard(err).Field())

	_, err = engine.ReportResult(context.Background(), cred, confirmedEntry(models.Slot1), ResultInput{Message: bad})
	require.Error(t, err)
	assert.Equal(t, "resultMessage", apperrors.AsStandard(err).Field())

	_, err = ResolveCancelReason(CancelInput{Reason: CancelReasonOther, Detail: bad})
	require.Error(t, err)
	assert.Equal(t, "cancelReason", apperrors.AsStandard(err).Field())

	assert.Empty(t, store.calls())
}

// ==========================
// Cancel
// ==========================

func TestResolveCancelReason(t *testing.T) {
	tests := []struct {
		name    string
		in      CancelInput
		want    string
		wantErr bool
	}{
		{"schedule change", CancelInput{Reason: CancelReasonScheduleChange}, "일정 변경", false},
		{"personal", CancelInput{Reason: CancelReasonPersonal}, "개인 사정", false},
		{"position closed", CancelInput{Reason: CancelReasonPositionClosed}, "채용 마감", false},
		{"other with detail", CancelInput{Reason: CancelReasonOther, Detail: " 지원자 연락 두절 "}, "지원자 연락 두절", false},
		{"other without detail", CancelInput{Reason: CancelReasonOther}, "", true},
		{"free text", CancelInput{Reason: "면접관 부재"}, "면접관 부재", false},
		{"empty", CancelInput{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveCancelReason(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, "cancelReason", apperrors.AsStandard(err).Field())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_Cancel(t *testing.T) {
	t.Run("from requested", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		entry := entryWith(models.StatusInterviewRequested, &models.InterviewNote{Method: models.MethodOnline, Slot1: t1, Slot2: t2})
		res, err := engine.Cancel(context.Background(), cred, entry, CancelInput{Reason: CancelReasonOther, Detail: "채용 보류"})
		require.NoError(t, err)
		assert.Equal(t, "채용 보류", *res.Note.CancelReason)
		assert.Nil(t, res.Note.SelectedSlot)
		assert.Empty(t, store.calls()[0].Update.InterviewDate)
	})

	t.Run("missing reason", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		_, err := engine.Cancel(context.Background(), cred, confirmedEntry(models.Slot1), CancelInput{})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))
		assert.Empty(t, store.calls())
	})

	t.Run("not from coordination", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		_, err := engine.Cancel(context.Background(), cred, entryWith(models.StatusCoordinationNeeded, nil), CancelInput{Reason: CancelReasonPersonal})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidTransition))
		assert.Empty(t, store.calls())
	})
}

// ==========================
// Store failures and side effects
// ==========================

func TestEngine_StoreFailureLeavesNothingBehind(t *testing.T) {
	store := newFakeStore()
	store.updateErr = apperrors.NewRecordStoreError(409, "already confirmed")
	sink := &recordingSink{}
	engine := newTestEngine(t, store, WithEventPublisher(sink), WithAuditSink(sink))

	entry := entryWith(models.StatusInterviewRequested, &models.InterviewNote{Method: models.MethodOnline, Slot1: t1, Slot2: t2})
	res, err := engine.Confirm(context.Background(), cred, entry, models.Slot1)

	assert.Nil(t, res)
	require.Error(t, err)
	assert.Equal(t, "already confirmed", apperrors.UserMessage(err))
	assert.Equal(t, models.StatusInterviewRequested, entry.Status)
	assert.Nil(t, entry.Note.SelectedSlot)
	assert.Empty(t, sink.events)

	// a retry after a store failure is not blocked by the in-flight guard
	store.updateErr = nil
	_, err = engine.Confirm(context.Background(), cred, entry, models.Slot1)
	assert.NoError(t, err)
}

func TestEngine_SideEffects(t *testing.T) {
	store := newFakeStore()
	publisher := &recordingSink{}
	audit := &recordingSink{}
	fixed := time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)
	engine := newTestEngine(t, store, WithEventPublisher(publisher), WithAuditSink(audit), WithClock(func() time.Time { return fixed }))

	res, err := engine.ReportResult(context.Background(), cred, confirmedEntry(models.Slot2), ResultInput{Passed: true})
	require.NoError(t, err)

	require.Len(t, publisher.events, 1)
	ev := publisher.events[0]
	assert.Equal(t, "app-1", ev.ApplicationID)
	assert.Equal(t, "job-1", ev.JobID)
	assert.Equal(t, string(OpReportPass), ev.Operation)
	assert.Equal(t, models.StatusConfirmed, ev.From)
	assert.Equal(t, models.StatusAccepted, ev.To)
	assert.Equal(t, fixed, ev.At)
	assert.Equal(t, res.NoteText, ev.NoteText)
	assert.NotEmpty(t, ev.RequestID)

	require.Len(t, audit.events, 1)
	assert.Equal(t, ev, audit.events[0])
}

func TestEngine_SideEffectFailuresDoNotFailTransition(t *testing.T) {
	store := newFakeStore()
	broken := &recordingSink{err: errors.New("redis down")}
	engine := newTestEngine(t, store, WithEventPublisher(broken), WithAuditSink(broken))

	res, err := engine.Cancel(context.Background(), cred, confirmedEntry(models.Slot1), CancelInput{Reason: CancelReasonPersonal})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, res.To)
	assert.Len(t, broken.events, 2)
}

func TestEngine_RefusesOverlappingTransitions(t *testing.T) {
	store := newFakeStore()
	store.block = make(chan struct{})
	store.entered = make(chan struct{}, 1)
	engine := newTestEngine(t, store)

	entry := confirmedEntry(models.Slot1)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = engine.ReportResult(context.Background(), cred, entry, ResultInput{Passed: true})
	}()

	<-store.entered

	_, err := engine.Cancel(context.Background(), cred, entry, CancelInput{Reason: CancelReasonPersonal})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTransitionInFlight))

	// another application is not affected
	other := confirmedEntry(models.Slot1)
	other.ApplicationID = "app-2"
	done := make(chan error, 1)
	go func() {
		_, err := engine.Cancel(context.Background(), cred, other, CancelInput{Reason: CancelReasonPersonal})
		done <- err
	}()
	<-store.entered

	close(store.block)
	wg.Wait()
	require.NoError(t, firstErr)
	require.NoError(t, <-done)
	assert.Len(t, store.calls(), 2)
}
