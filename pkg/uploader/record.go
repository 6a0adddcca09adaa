package uploader

// Status is the lifecycle state of a tracked file.
type Status string

const (
	StatusPending      Status = "pending"
	StatusTransferring Status = "transferring"
	StatusComplete     Status = "complete"
	StatusFailed       Status = "failed"
)

// FileRecord is one tracked upload unit. The content hash is both the
// record's identity and its dedup/retry key; at most one record per hash
// exists in a collection at any time.
//
// Projections hand out copies, so a FileRecord held by a caller is a
// snapshot and never mutates underneath it.
type FileRecord struct {
	// Hash is the hex-encoded sha256 of the file content.
	Hash string `json:"hash"`

	// Metadata captured at add-time, immutable afterwards.
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`

	// DestinationURL is assigned once negotiation succeeds and is always
	// set before the record leaves StatusPending.
	DestinationURL string `json:"destination_url,omitempty"`

	Status Status `json:"status"`

	// Progress runs 0..1 and is non-decreasing while transferring. Only
	// meaningful for transferring and complete records.
	Progress float64 `json:"progress"`

	// ErrorMessage is set only while Status is StatusFailed.
	ErrorMessage string `json:"error_message,omitempty"`

	// Duplicate pulses true for a short interval when an add attempt
	// collides with this record's hash. Pure UI signal.
	Duplicate bool `json:"duplicate"`
}

// Terminal reports whether the record reached an end state. A failed
// record can still re-enter pending through an explicit retry.
func (r FileRecord) Terminal() bool {
	return r.Status == StatusComplete || r.Status == StatusFailed
}
