package uploader

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// View is the read-only surface of a manager, for consumers that only
// render state.
type View interface {
	Files() []FileRecord
	Get(hash string) (FileRecord, bool)
	Len() int
	RemainingCapacity() int
	HasPending() bool
	HasTransferring() bool
	HasFailed() bool
	HasComplete() bool
	Errors() []ErrorEntry
}

// Actions is the mutating surface of a manager, for consumers that drive
// uploads but never read state directly.
type Actions interface {
	AddFiles(ctx context.Context, sources ...Source)
	RemoveFile(hash string)
	RemoveAll()
	RetryUpload(ctx context.Context, hash string)
	AddErrors(errs ...*Error)
	ClearErrors()
}

// entry binds a record to the resources it owns. Keeping record, source,
// preview and cancel function in one struct means a record can never
// orphan its byte source.
type entry struct {
	record   *FileRecord
	source   Source
	preview  PreviewHandle
	cancel   context.CancelFunc
	pulse    *time.Timer
	retrying bool
}

// Manager is the single source of truth for the upload collection. It
// owns file identity, concurrency-limited scheduling, retry, duplicate
// suppression and resource cleanup. Construct one explicitly with
// NewManager and hand it (or its View/Actions halves) to consumers; there
// is no ambient global instance.
type Manager struct {
	lib Library
	cfg *Config

	mu      sync.Mutex
	entries map[string]*entry
	order   []string          // insertion order of hashes
	staged  map[string]Source // hashes reserved by an in-flight negotiation
	errs    []ErrorEntry
	waiters []chan struct{}
}

var (
	_ View    = (*Manager)(nil)
	_ Actions = (*Manager)(nil)
)

// NewManager creates an upload manager with the given collaborators and options
func NewManager(lib Library, options ...Option) *Manager {
	cfg := DefaultConfig()
	for _, option := range options {
		option(cfg)
	}
	return &Manager{
		lib:     lib,
		cfg:     cfg,
		entries: make(map[string]*entry),
		staged:  make(map[string]Source),
	}
}

// AddFiles hashes, deduplicates and stages the given sources, then issues
// one batched negotiation call for everything staged. Records are created
// only for candidates the backend returned a destination for. Failures
// never abort the rest of the batch; they land in the error log or, for
// retry records, on the record itself.
//
// The manager takes ownership of every source: rejected and deduplicated
// sources are closed before the negotiation call goes out.
func (m *Manager) AddFiles(ctx context.Context, sources ...Source) {
	if len(sources) == 0 {
		return
	}

	accepted := m.clampToCapacity(sources)

	var (
		batch        []Candidate
		batchSources []Source
		overflow     int
	)
	for _, src := range accepted {
		if !m.acceptSource(src) {
			src.Close()
			continue
		}

		hash, err := m.lib.Hasher.Hash(ctx, src)
		if err != nil {
			log.Warn().Err(err).Str("file", src.Name()).Msg("failed to hash source")
			m.appendError(NewError(KindUnknown, fmt.Sprintf("Failed to process %s", src.Name()), err.Error()))
			src.Close()
			continue
		}

		// Duplicate detection runs against live collection state at the
		// moment the hash resolves, not against a snapshot taken before
		// hashing started.
		m.mu.Lock()
		if e, ok := m.entries[hash]; ok {
			m.pulseDuplicateLocked(e)
			m.mu.Unlock()
			src.Close()
			continue
		}
		if _, ok := m.staged[hash]; ok {
			// Same content is already negotiating in another call; the
			// later arrival is dropped silently.
			m.mu.Unlock()
			src.Close()
			continue
		}
		// The clamp ran before any hash resolved; a concurrent AddFiles
		// call may have consumed capacity since, so the ceiling is
		// enforced again at the staging site, against live state.
		if len(m.entries)+len(m.staged) >= m.cfg.MaxFiles {
			overflow++
			m.mu.Unlock()
			src.Close()
			continue
		}
		m.staged[hash] = src
		m.mu.Unlock()

		batch = append(batch, Candidate{
			Filename:    src.Name(),
			Filesize:    src.Size(),
			ContentType: src.ContentType(),
			SHA256:      hash,
		})
		batchSources = append(batchSources, src)
	}

	if overflow > 0 {
		m.appendError(NewError(
			KindValidation,
			fmt.Sprintf("%d file(s) could not be added", overflow),
			fmt.Sprintf("At most %d files can be tracked at once", m.cfg.MaxFiles),
		))
	}

	if len(batch) == 0 {
		return
	}

	if cb := m.cfg.OnBatchAdded; cb != nil {
		cb(batchSources)
	}

	m.negotiateBatch(ctx, batch)
}

// clampToCapacity trims the input to the remaining capacity, recording a
// single validation error for the overflow and closing the dropped
// sources.
func (m *Manager) clampToCapacity(sources []Source) []Source {
	m.mu.Lock()
	remaining := m.cfg.MaxFiles - len(m.entries) - len(m.staged)
	if remaining < 0 {
		remaining = 0
	}
	if len(sources) <= remaining {
		m.mu.Unlock()
		return sources
	}
	dropped := len(sources) - remaining
	m.errs = append(m.errs, newErrorEntry(NewError(
		KindValidation,
		fmt.Sprintf("%d file(s) could not be added", dropped),
		fmt.Sprintf("At most %d files can be tracked at once", m.cfg.MaxFiles),
	)))
	m.mu.Unlock()

	for _, src := range sources[remaining:] {
		src.Close()
	}
	return sources[:remaining]
}

// acceptSource applies the optional size and type filters, recording a
// validation error for each rejected source.
func (m *Manager) acceptSource(src Source) bool {
	if m.cfg.MaxFileSize > 0 && src.Size() > m.cfg.MaxFileSize {
		m.appendError(NewError(
			KindValidation,
			fmt.Sprintf("%s is too large", src.Name()),
			fmt.Sprintf("Maximum file size is %d bytes", m.cfg.MaxFileSize),
		))
		return false
	}
	if len(m.cfg.AcceptedTypes) > 0 && !matchesType(src, m.cfg.AcceptedTypes) {
		m.appendError(NewError(
			KindValidation,
			fmt.Sprintf("%s is not an accepted file type", src.Name()),
			fmt.Sprintf("Accepted: %s", strings.Join(m.cfg.AcceptedTypes, ", ")),
		))
		return false
	}
	return true
}

func matchesType(src Source, accepted []string) bool {
	name := strings.ToLower(src.Name())
	for _, t := range accepted {
		if strings.HasPrefix(t, ".") {
			if strings.HasSuffix(name, strings.ToLower(t)) {
				return true
			}
			continue
		}
		if strings.HasPrefix(src.ContentType(), t) {
			return true
		}
	}
	return false
}

// negotiateBatch exchanges staged candidates for destinations and creates
// pending records. Candidates the backend skipped are dropped with an
// invalid-response error; a whole-batch failure drops every candidate in
// this call and nothing else.
func (m *Manager) negotiateBatch(ctx context.Context, batch []Candidate) {
	dests, err := m.lib.Negotiator.Negotiate(ctx, batch)
	m.attachPreviews(m.settleBatch(batch, dests, err))
}

// settleBatch applies one negotiation outcome to the collection and
// returns the image-typed entries that still need a preview handle.
func (m *Manager) settleBatch(batch []Candidate, dests []Destination, err error) []*entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.notifyWaitersLocked()

	if err != nil {
		uerr := AsError(err)
		log.Warn().Err(uerr).Int("candidates", len(batch)).Msg("negotiation failed")
		m.errs = append(m.errs, newErrorEntry(uerr))
		for _, c := range batch {
			if src, ok := m.staged[c.SHA256]; ok {
				delete(m.staged, c.SHA256)
				src.Close()
			}
		}
		return nil
	}

	byHash := make(map[string]Destination, len(dests))
	for _, d := range dests {
		byHash[d.SHA256] = d
	}

	var previewTargets []*entry
	for _, c := range batch {
		src, ok := m.staged[c.SHA256]
		if !ok {
			// Reservation revoked by RemoveAll while negotiating.
			continue
		}
		delete(m.staged, c.SHA256)

		d, ok := byHash[c.SHA256]
		if !ok || d.URL == "" {
			m.errs = append(m.errs, newErrorEntry(NewError(
				KindInvalidResponse,
				fmt.Sprintf("No upload destination returned for %s", c.Filename),
				"",
			)))
			src.Close()
			continue
		}

		e := &entry{
			record: &FileRecord{
				Hash:           c.SHA256,
				Name:           c.Filename,
				Size:           c.Filesize,
				ContentType:    c.ContentType,
				DestinationURL: d.URL,
				Status:         StatusPending,
			},
			source: src,
		}
		if m.cfg.PreviewFactory != nil && strings.HasPrefix(c.ContentType, "image/") {
			previewTargets = append(previewTargets, e)
		}
		m.entries[c.SHA256] = e
		m.order = append(m.order, c.SHA256)
		log.Debug().Str("file", c.Filename).Str("hash", c.SHA256).Msg("upload staged")
	}

	m.scheduleLocked()
	return previewTargets
}

// attachPreviews runs the caller-supplied preview factory outside the
// manager lock, so a factory is free to call back into the manager. A
// handle whose entry was removed in the meantime is released immediately.
func (m *Manager) attachPreviews(targets []*entry) {
	if m.cfg.PreviewFactory == nil {
		return
	}
	for _, e := range targets {
		handle := m.cfg.PreviewFactory(e.source)
		if handle == nil {
			continue
		}
		m.mu.Lock()
		if cur, ok := m.entries[e.record.Hash]; ok && cur == e {
			e.preview = handle
			m.mu.Unlock()
			continue
		}
		m.mu.Unlock()
		handle.Release()
	}
}

// RemoveFile cancels any in-flight transfer for the record, releases its
// resources and deletes it. Removing an unknown hash is a no-op.
func (m *Manager) RemoveFile(hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[hash]; !ok {
		return
	}
	m.deleteEntryLocked(hash)
	m.scheduleLocked()
	m.notifyWaitersLocked()
}

// RemoveAll cancels every in-flight transfer, releases every resource and
// clears both the collection and the transient error log.
func (m *Manager) RemoveAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, hash := range append([]string(nil), m.order...) {
		m.deleteEntryLocked(hash)
	}
	for hash, src := range m.staged {
		delete(m.staged, hash)
		src.Close()
	}
	m.errs = nil
	m.notifyWaitersLocked()
}

// RetryUpload re-negotiates a destination for exactly one failed record
// (destinations expire) and re-enters it as pending. It is a no-op for
// any record not currently failed: pending and transferring records are
// already owned by the scheduler, and complete is terminal.
func (m *Manager) RetryUpload(ctx context.Context, hash string) {
	m.mu.Lock()
	e, ok := m.entries[hash]
	if !ok || e.retrying || e.record.Status != StatusFailed {
		m.mu.Unlock()
		return
	}
	e.retrying = true
	cand := Candidate{
		Filename:    e.record.Name,
		Filesize:    e.record.Size,
		ContentType: e.record.ContentType,
		SHA256:      hash,
	}
	m.mu.Unlock()

	dests, err := m.lib.Negotiator.Negotiate(ctx, []Candidate{cand})

	m.mu.Lock()
	e, ok = m.entries[hash]
	if !ok {
		// Removed while negotiating.
		m.mu.Unlock()
		return
	}
	e.retrying = false

	var failure *Error
	switch {
	case err != nil:
		failure = AsError(err)
	default:
		var dest *Destination
		for i := range dests {
			if dests[i].SHA256 == hash {
				dest = &dests[i]
				break
			}
		}
		if dest == nil || dest.URL == "" {
			failure = NewError(KindInvalidResponse, "Unable to obtain upload URL",
				fmt.Sprintf("No destination returned for %s", e.record.Name))
		} else {
			e.record.DestinationURL = dest.URL
			e.record.Status = StatusPending
			e.record.Progress = 0
			e.record.ErrorMessage = ""
			log.Debug().Str("file", e.record.Name).Msg("retry staged")
			m.scheduleLocked()
		}
	}

	var errorCB func()
	if failure != nil {
		m.errs = append(m.errs, newErrorEntry(failure))
		e.record.Status = StatusFailed
		e.record.ErrorMessage = failure.Message
		log.Warn().Err(failure).Str("file", e.record.Name).Msg("retry negotiation failed")
		if cb := m.cfg.OnUploadError; cb != nil {
			src := e.source
			errorCB = func() { cb([]FailedUpload{{Source: src, Err: failure}}) }
		}
	}
	m.notifyWaitersLocked()
	m.mu.Unlock()

	if errorCB != nil {
		errorCB()
	}
}

// AddErrors appends externally-originated errors to the collection-level
// log, independent of any record.
func (m *Manager) AddErrors(errs ...*Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, err := range errs {
		if err == nil {
			continue
		}
		m.errs = append(m.errs, newErrorEntry(err))
	}
}

// ClearErrors empties the collection-level error log.
func (m *Manager) ClearErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = nil
}

// Wait blocks until the collection has no staged, pending or transferring
// work left, or the context is done.
func (m *Manager) Wait(ctx context.Context) error {
	for {
		m.mu.Lock()
		if !m.busyLocked() {
			m.mu.Unlock()
			return nil
		}
		ch := make(chan struct{})
		m.waiters = append(m.waiters, ch)
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (m *Manager) busyLocked() bool {
	if len(m.staged) > 0 {
		return true
	}
	for _, e := range m.entries {
		if e.retrying || e.record.Status == StatusPending || e.record.Status == StatusTransferring {
			return true
		}
	}
	return false
}

func (m *Manager) notifyWaitersLocked() {
	for _, ch := range m.waiters {
		close(ch)
	}
	m.waiters = nil
}

func (m *Manager) appendError(err *Error) {
	m.mu.Lock()
	m.errs = append(m.errs, newErrorEntry(err))
	m.mu.Unlock()
}

// pulseDuplicateLocked raises the record's transient duplicate flag and
// arms a timer to clear it. A second collision before the pulse ends
// restarts the timer.
func (m *Manager) pulseDuplicateLocked(e *entry) {
	e.record.Duplicate = true
	if e.pulse != nil {
		e.pulse.Stop()
	}
	hash := e.record.Hash
	e.pulse = time.AfterFunc(m.cfg.DuplicatePulse, func() {
		m.mu.Lock()
		if cur, ok := m.entries[hash]; ok && cur == e {
			cur.record.Duplicate = false
		}
		m.mu.Unlock()
	})
	log.Debug().Str("file", e.record.Name).Msg("duplicate add suppressed")
}

// deleteEntryLocked tears down one entry: cancels its transfer, releases
// the preview exactly once, closes the byte source and removes the record.
func (m *Manager) deleteEntryLocked(hash string) {
	e, ok := m.entries[hash]
	if !ok {
		return
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if e.pulse != nil {
		e.pulse.Stop()
		e.pulse = nil
	}
	if e.preview != nil {
		e.preview.Release()
		e.preview = nil
	}
	e.source.Close()
	delete(m.entries, hash)
	for i, h := range m.order {
		if h == hash {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	log.Debug().Str("file", e.record.Name).Str("hash", hash).Msg("record removed")
}
