// Package constants holds values shared by the API and the scheduler.
package constants

import "time"

const (
	StorageOperationTimeout = 5 * time.Second
	DefaultPage             = 1
	DefaultPageSize         = 10
)
