package domain

// ProgressFunc reports bulk download progress.
// total is -1 when the server did not announce a content length.
type ProgressFunc func(downloaded, total int64)

// MirrorStatus reports mirror probing as each probe resolves.
type MirrorStatus struct {
	Available []string
	Checked   int
	Total     int
	Done      bool
}

// MirrorObserver receives incremental probe results.
type MirrorObserver interface {
	OnMirrorStatus(status MirrorStatus)
}

// NoOpObserver discards progress updates (for testing/batch operations).
type NoOpObserver struct{}

func (NoOpObserver) OnMirrorStatus(MirrorStatus) {}
