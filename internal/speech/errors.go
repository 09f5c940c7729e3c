package speech

import (
	"errors"
	"fmt"
)

var (
	// ErrInit marks a failed job initialization; the client instance is
	// unusable afterwards.
	ErrInit = errors.New("job initialization failed")

	// ErrUpload marks a failed audio upload. The destination path is
	// deterministic, so re-uploading the same content is safe.
	ErrUpload = errors.New("audio upload failed")

	ErrStart       = errors.New("job start failed")
	ErrStatusCheck = errors.New("job status check failed")

	// ErrPollTimeout means the polling budget ran out before the job
	// reached a terminal state. The job may still be running remotely.
	ErrPollTimeout = errors.New("timed out waiting for job completion")

	ErrDownload = errors.New("output download failed")
)

// RemoteJobError reports that the service itself marked the job as failed,
// carrying the error message the service returned alongside the state.
type RemoteJobError struct {
	Message string
}

func (e *RemoteJobError) Error() string {
	if e.Message == "" {
		return "remote job failed"
	}
	return fmt.Sprintf("remote job failed: %s", e.Message)
}
