package models

import "time"

// JobStatus is the lifecycle state of an OCR job.
type JobStatus string

const (
	JobSubmitted JobStatus = "SUBMITTED"
	JobPolling   JobStatus = "POLLING"
	JobDone      JobStatus = "DONE"
	JobTimedOut  JobStatus = "TIMED_OUT"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobTimedOut || s == JobFailed
}

// OcrJob is one asynchronous recognition request. SourceURI references the
// uploaded input, DestinationPrefix is where the service writes result fragments.
type OcrJob struct {
	ID                string
	OperationName     string
	SourceURI         string
	MimeType          string
	Bucket            string
	DestinationPrefix string
	Status            JobStatus
	SubmittedAt       time.Time
	Elapsed           time.Duration
}

// DestinationURI is the gs:// form of the destination prefix.
func (j *OcrJob) DestinationURI() string {
	return "gs://" + j.Bucket + "/" + j.DestinationPrefix
}

// OcrResultPage is the text recognized for a single page.
type OcrResultPage struct {
	Page     int
	Fragment string
	Text     string
}

// PageSeparator is appended after every recognized page.
const PageSeparator = "\n\n"

// ExtractedText is the concatenated text of all recognized pages.
type ExtractedText struct {
	Text  string
	Pages []OcrResultPage
}

// JoinPages concatenates page texts, each followed by PageSeparator.
func JoinPages(pages []OcrResultPage) string {
	var n int
	for _, p := range pages {
		n += len(p.Text) + len(PageSeparator)
	}
	buf := make([]byte, 0, n)
	for _, p := range pages {
		buf = append(buf, p.Text...)
		buf = append(buf, PageSeparator...)
	}
	return string(buf)
}
