//go:generate go run github.com/dmarkham/enumer -trimprefix=ProcessTrackerStatus -type=ProcessTrackerStatus -json -text -sql

package enums

// ProcessTrackerStatus is the lifecycle of a scheduled task.  Trackers move
// New -> Processing when the producer hands them to a batch, Processing ->
// ProcessStarted when a consumer picks the batch up, and end in Finish.  A
// retry moves the tracker back to New with a later schedule time.
type ProcessTrackerStatus int

const (
	ProcessTrackerStatusNew ProcessTrackerStatus = iota
	ProcessTrackerStatusProcessStarted
	ProcessTrackerStatusProcessing
	ProcessTrackerStatusFinish
)
