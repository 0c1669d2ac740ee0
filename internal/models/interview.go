// internal/models/interview.go
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// InterviewStatus is the lifecycle state of one application's interview.
type InterviewStatus string

const (
	StatusInterviewRequested InterviewStatus = "INTERVIEW_REQUESTED"
	StatusCoordinationNeeded InterviewStatus = "COORDINATION_NEEDED"
	StatusConfirmed          InterviewStatus = "CONFIRMED"
	StatusAccepted           InterviewStatus = "ACCEPTED"
	StatusRejected           InterviewStatus = "REJECTED"
	StatusCancelled          InterviewStatus = "CANCELLED"
)

// InterviewStatuses lists every interview status in lifecycle order.
var InterviewStatuses = []InterviewStatus{
	StatusInterviewRequested,
	StatusCoordinationNeeded,
	StatusConfirmed,
	StatusAccepted,
	StatusRejected,
	StatusCancelled,
}

type InterviewMethod string

const (
	MethodOnline  InterviewMethod = "ONLINE"
	MethodOffline InterviewMethod = "OFFLINE"
)

type SlotChoice string

const (
	Slot1 SlotChoice = "slot1"
	Slot2 SlotChoice = "slot2"
)

type CancelParty string

const (
	CancelledByEmployer  CancelParty = "EMPLOYER"
	CancelledByApplicant CancelParty = "APPLICANT"
)

// InterviewNote is the scheduling payload stored as opaque text on the
// application record. Nullable fields are pointers and always serialize.
type InterviewNote struct {
	Method        InterviewMethod `json:"method"`
	Slot1         string          `json:"slot1"`
	Slot2         string          `json:"slot2"`
	MeetingLink   string          `json:"meetingLink"`
	Address       string          `json:"address"`
	Directions    string          `json:"directions"`
	WhatToBring   string          `json:"whatToBring"`
	SelectedSlot  *SlotChoice     `json:"selectedSlot"`
	CancelledBy   *CancelParty    `json:"cancelledBy"`
	CancelReason  *string         `json:"cancelReason"`
	ResultMessage string          `json:"resultMessage"`
}

// Clone returns a deep copy; a nil note clones to nil.
func (n *InterviewNote) Clone() *InterviewNote {
	if n == nil {
		return nil
	}
	c := *n
	if n.SelectedSlot != nil {
		v := *n.SelectedSlot
		c.SelectedSlot = &v
	}
	if n.CancelledBy != nil {
		v := *n.CancelledBy
		c.CancelledBy = &v
	}
	if n.CancelReason != nil {
		v := *n.CancelReason
		c.CancelReason = &v
	}
	return &c
}

// Slot returns the timestamp proposed for choice, or "" for an unknown choice.
func (n *InterviewNote) Slot(choice SlotChoice) string {
	switch choice {
	case Slot1:
		return n.Slot1
	case Slot2:
		return n.Slot2
	}
	return ""
}

// ID is an identifier the record store may send as a JSON number or string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// NoteText is the raw interview note. Stores that return the note as an
// embedded object instead of a string are kept as the object's JSON text.
type NoteText string

func (t *NoteText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = NoteText(s)
		return nil
	}
	*t = NoteText(b)
	return nil
}

type Job struct {
	ID    ID     `json:"id"`
	Title string `json:"title"`
}

type Applicant struct {
	RealName    string `json:"realName"`
	Nationality string `json:"nationality,omitempty"`
	VisaType    string `json:"visaType,omitempty"`
}

// ApplicationRecord is one application as the record store returns it.
type ApplicationRecord struct {
	ID              ID        `json:"id"`
	ApplicantID     ID        `json:"applicantId"`
	Status          string    `json:"status"`
	InterviewDate   string    `json:"interviewDate,omitempty"`
	InterviewNote   NoteText  `json:"interviewNote,omitempty"`
	RejectionReason string    `json:"rejectionReason,omitempty"`
	CreatedAt       string    `json:"createdAt"`
	Applicant       Applicant `json:"applicant"`
}

// ApplicationEntry is the employer-facing read model of one application.
type ApplicationEntry struct {
	ApplicationID   string          `json:"applicationId"`
	ApplicantID     string          `json:"applicantId"`
	JobID           string          `json:"jobId"`
	JobTitle        string          `json:"jobTitle"`
	Status          InterviewStatus `json:"status"`
	Note            *InterviewNote  `json:"parsedNote"`
	InterviewDate   string          `json:"interviewDate,omitempty"`
	CreatedAt       string          `json:"createdAt"`
	RejectionReason string          `json:"rejectionReason,omitempty"`
	ApplicantName   string          `json:"applicantName"`
	Nationality     string          `json:"nationality,omitempty"`
	VisaType        string          `json:"visaType,omitempty"`
}

// StatusUpdate is the body of PUT /applications/{id}/status.
type StatusUpdate struct {
	Status          InterviewStatus `json:"status"`
	InterviewNote   string          `json:"interviewNote"`
	InterviewDate   string          `json:"interviewDate,omitempty"`
	RejectionReason string          `json:"rejectionReason,omitempty"`
}

// Credential is the caller's bearer token, passed explicitly to every store call.
type Credential struct {
	Token string
}

// BearerCredential extracts the token from an Authorization header value.
func BearerCredential(header string) (Credential, bool) {
	const prefix = "bearer "
	h := strings.TrimSpace(header)
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return Credential{}, false
	}
	token := strings.TrimSpace(h[len(prefix):])
	if token == "" {
		return Credential{}, false
	}
	return Credential{Token: token}, true
}

// TransitionEvent describes one committed transition. It feeds both the event
// publisher and the audit trail.
type TransitionEvent struct {
	RequestID     string          `json:"requestId"`
	ApplicationID string          `json:"applicationId"`
	JobID         string          `json:"jobId"`
	Operation     string          `json:"operation"`
	From          InterviewStatus `json:"from"`
	To            InterviewStatus `json:"to"`
	NoteText      string          `json:"-"`
	At            time.Time       `json:"at"`
}
