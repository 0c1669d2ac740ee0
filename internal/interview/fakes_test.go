package interview

import (
	"context"
	"sync"

	"jobchaja-interviews/internal/models"
)

type updateCall struct {
	ApplicationID string
	Update        models.StatusUpdate
	Token         string
}

// fakeStore is an in-memory RecordStore.
type fakeStore struct {
	mu sync.Mutex

	jobs    []models.Job
	jobsErr error
	apps    map[string][]models.ApplicationRecord
	appErrs map[string]error

	updateErr error
	updates   []updateCall

	// block, when set, holds UpdateStatus until closed; entered is signalled first.
	block   chan struct{}
	entered chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		apps:    make(map[string][]models.ApplicationRecord),
		appErrs: make(map[string]error),
	}
}

func (f *fakeStore) ListMyJobs(ctx context.Context, cred models.Credential) ([]models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs, f.jobsErr
}

func (f *fakeStore) ListJobApplications(ctx context.Context, cred models.Credential, jobID string) ([]models.ApplicationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.appErrs[jobID]; err != nil {
		return nil, err
	}
	return f.apps[jobID], nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, cred models.Credential, applicationID string, update models.StatusUpdate) error {
	if f.block != nil {
		f.entered <- struct{}{}
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, updateCall{ApplicationID: applicationID, Update: update, Token: cred.Token})
	return f.updateErr
}

func (f *fakeStore) calls() []updateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]updateCall(nil), f.updates...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.TransitionEvent
	err    error
}

func (r *recordingSink) PublishTransition(ctx context.Context, ev models.TransitionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) RecordTransition(ctx context.Context, ev models.TransitionEvent) error {
	return r.PublishTransition(ctx, ev)
}
