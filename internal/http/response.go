package http

import (
	"net/http"
	"time"
)

// TimingInfo breaks one round trip into httptrace phases. Phases that did
// not happen, such as DNS on a reused connection, stay zero.
type TimingInfo struct {
	StartTime time.Time

	DNSLookupTime    time.Duration
	TCPConnectTime   time.Duration
	TLSHandshakeTime time.Duration

	// TimeToFirstByte is measured from the end of the last connection phase.
	TimeToFirstByte time.Duration

	ContentTransferTime time.Duration

	// TotalTime covers sending the request and reading the full body.
	TotalTime time.Duration
}

// Response is a status, headers and a body already read to the end, so the
// connection is back in the pool before checks run.
type Response struct {
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte

	// Duration is what http_req_duration records.
	Duration time.Duration
	Timing   TimingInfo
}

// GetHeader is Headers.Get, tolerating a nil map.
func (r *Response) GetHeader(key string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get(key)
}

// Size is the body length in bytes, summed into the run's TotalBytes.
func (r *Response) Size() int64 {
	return int64(len(r.Body))
}
