package pallet

import "github.com/dmitrijs2005/bucketkeeper/internal/ledger"

func dispatchError(name, docs string) *ledger.DispatchError {
	return &ledger.DispatchError{Module: ledger.Module, Name: name, Docs: docs}
}

var (
	ErrBadOrigin              = dispatchError("BadOrigin", "call requires the governance account")
	ErrNoPermission           = dispatchError("NoPermission", "caller lacks the required role")
	ErrNamespaceAlreadyExists = dispatchError("NamespaceAlreadyExists", "namespace id is taken")
	ErrNamespaceNotFound      = dispatchError("NamespaceNotFound", "namespace does not exist")
	ErrBucketNotFound         = dispatchError("BucketNotFound", "bucket does not exist in the namespace")
	ErrMessageNotFound        = dispatchError("MessageNotFound", "message does not exist")
	ErrBucketLocked           = dispatchError("BucketLocked", "bucket has no current key")
	ErrTagNotFound            = dispatchError("TagNotFound", "tag is not defined on the bucket")
	ErrTagAlreadyExists       = dispatchError("TagAlreadyExists", "tag is already defined")
	ErrAlreadyMember          = dispatchError("AlreadyMember", "account already holds the role")
	ErrNotMember              = dispatchError("NotMember", "account does not hold the role")
	ErrEmptyReference         = dispatchError("EmptyReference", "message reference is empty")
	ErrUnknownCall            = dispatchError("UnknownCall", "call is not supported")
)
