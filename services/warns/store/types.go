package store

import "errors"

var (
	// ErrWarnNotFound is an error indicating a given warn does not exist
	ErrWarnNotFound = errors.New("warn not found")
	// ErrBucketNotFound is an error indicating the data store bucket does not exist
	ErrBucketNotFound = errors.New("bucket not found")
)

const (
	// Permissions to use on the db file. This is only used if the
	// database file does not exist and needs to be created.
	dbFileMode = 0600
)
