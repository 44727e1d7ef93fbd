package model

import "time"

// ScanRecord is a model of the persistency layer. One record is one accepted
// item scan inside the open window of a session.
type ScanRecord struct {
	Date     time.Time
	ItemID   string
	User     string
	Metadata string
}
