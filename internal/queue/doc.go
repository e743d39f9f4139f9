// Package queue provides the double-ended buffer used for pending quote requests
// and for handing price updates to the history writer.
//
// New work is appended at the tail. Retried work is pushed back at the head so it
// is serviced before anything enqueued after it.
package queue
