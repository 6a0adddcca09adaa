package uploader

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// scheduleLocked is the level-triggered reconciliation pass. It runs under
// the manager lock after every mutation that can fill or free a transfer
// slot, scans pending records in insertion order and promotes as many as
// the concurrency ceiling allows. There is no "start next" entry point:
// whenever a slot frees up, the next pass picks up the next pending
// record.
func (m *Manager) scheduleLocked() {
	active := 0
	for _, e := range m.entries {
		if e.record.Status == StatusTransferring {
			active++
		}
	}

	for _, hash := range m.order {
		if active >= m.cfg.Concurrency {
			break
		}
		e := m.entries[hash]
		if e == nil || e.record.Status != StatusPending {
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		e.record.Status = StatusTransferring
		e.cancel = cancel
		active++

		log.Debug().
			Str("file", e.record.Name).
			Str("hash", hash).
			Int("active", active).
			Msg("transfer started")

		go m.runTransfer(ctx, e, e.record.DestinationURL)
	}
}

// runTransfer carries the entry pointer, not just the hash: a record can
// be removed and re-added under the same content hash while this
// goroutine is in flight, and its outcome must never land on the
// replacement entry.
func (m *Manager) runTransfer(ctx context.Context, e *entry, destinationURL string) {
	hash := e.record.Hash
	err := m.lib.Transferrer.Upload(ctx, TransferRequest{
		Source:         e.source,
		Hash:           hash,
		DestinationURL: destinationURL,
		OnProgress: func(_ string, fraction float64) {
			m.reportProgress(e, fraction)
		},
	})
	m.finishTransfer(e, err)
}

// reportProgress clamps progress to 0..1 and drops regressions, so
// observations of a transferring record are always non-decreasing.
func (m *Manager) reportProgress(e *entry, fraction float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.entries[e.record.Hash]
	if !ok || cur != e || e.record.Status != StatusTransferring {
		return
	}
	if fraction > 1 {
		fraction = 1
	}
	if fraction > e.record.Progress {
		e.record.Progress = fraction
	}
}

// finishTransfer settles one transfer outcome and runs the next
// scheduling pass. An outcome is applied only if the goroutine's entry is
// still the one tracked for its hash: a record removed mid-flight (or
// removed and re-added) is gone by the time its aborted transfer lands
// here, so removal never resurrects as failed and never touches a
// same-hash successor.
func (m *Manager) finishTransfer(e *entry, err error) {
	m.mu.Lock()

	hash := e.record.Hash
	cur, ok := m.entries[hash]
	if !ok || cur != e {
		m.notifyWaitersLocked()
		m.mu.Unlock()
		return
	}
	e.cancel = nil

	var callback func()
	switch {
	case err == nil:
		e.record.Status = StatusComplete
		e.record.Progress = 1
		e.record.ErrorMessage = ""
		log.Debug().Str("file", e.record.Name).Msg("transfer complete")
		if cb := m.cfg.OnUploadComplete; cb != nil {
			rec := *e.record
			callback = func() { cb([]FileRecord{rec}) }
		}

	default:
		uerr := AsError(err)
		if errors.Is(err, context.Canceled) {
			uerr = NewError(KindTransferFailure, "Upload aborted", "")
		}
		src := e.source

		if uerr.Kind == KindDuplicate {
			// The server already holds this content under another hash.
			// The record is deleted, not failed, and the collision lands
			// in the collection-level log.
			name := e.record.Name
			m.deleteEntryLocked(hash)
			m.errs = append(m.errs, newErrorEntry(NewError(
				KindDuplicate,
				fmt.Sprintf("%s was already uploaded", name),
				uerr.Details,
			)))
			log.Debug().Str("file", name).Msg("server-side duplicate, record dropped")
		} else {
			e.record.Status = StatusFailed
			e.record.ErrorMessage = uerr.Message
			log.Warn().Err(uerr).Str("file", e.record.Name).Msg("transfer failed")
		}

		if cb := m.cfg.OnUploadError; cb != nil {
			callback = func() { cb([]FailedUpload{{Source: src, Err: uerr}}) }
		}
	}

	m.scheduleLocked()
	m.notifyWaitersLocked()
	m.mu.Unlock()

	if callback != nil {
		callback()
	}
}
