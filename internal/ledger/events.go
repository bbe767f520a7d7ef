package ledger

import "github.com/dmitrijs2005/bucketkeeper/internal/common"

// Module is the ledger module every bucket event and error belongs to.
const Module = "Buckets"

// EventName names a ledger event.
type EventName string

const (
	EventNamespaceCreated      EventName = "NamespaceCreated"
	EventBucketCreated         EventName = "BucketCreated"
	EventBucketWritableWithKey EventName = "BucketWritableWithKey"
	EventNewMessage            EventName = "NewMessage"
	EventAdminAdded            EventName = "AdminAdded"
	EventAdminRemoved          EventName = "AdminRemoved"
	EventManagerAdded          EventName = "ManagerAdded"
	EventManagerRemoved        EventName = "ManagerRemoved"
	EventContributorAdded      EventName = "ContributorAdded"
	EventContributorRemoved    EventName = "ContributorRemoved"
	EventPausedBucket          EventName = "PausedBucket"
	EventNewTag                EventName = "NewTag"
	EventNamespaceDeleted      EventName = "NamespaceDeleted"
	EventBucketDeleted         EventName = "BucketDeleted"
	EventMessageDeleted        EventName = "MessageDeleted"

	// EventExtrinsicFailed is emitted by the system module for rejected calls.
	EventExtrinsicFailed EventName = "ExtrinsicFailed"
)

// Event is a ledger event. Identifier fields not relevant to Name are zero.
type Event struct {
	Module      string
	Name        EventName
	NamespaceID uint64
	BucketID    uint64
	MessageID   uint64
	KeyID       uint64
	Account     string
	Tag         string
}

// Is reports whether e is the bucket event name.
func (e Event) Is(name EventName) bool {
	return e.Module == Module && e.Name == name
}

// DispatchError is a ledger rule violation reported for an included call.
type DispatchError struct {
	Module string
	Name   string
	Docs   string
}

func (e *DispatchError) Error() string {
	return e.Module + "." + e.Name
}

// CallError converts the dispatch error to the client error type.
func (e *DispatchError) CallError() *common.CallError {
	return &common.CallError{Module: e.Module, Name: e.Name, Docs: e.Docs}
}
