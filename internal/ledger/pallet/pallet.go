package pallet

import (
	"context"
	"errors"
	"slices"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
)

// Pallet applies calls. Root is the governance account allowed to remove
// namespaces, buckets and messages.
type Pallet struct {
	Root string
}

func New(root string) *Pallet {
	return &Pallet{Root: root}
}

func event(name ledger.EventName) ledger.Event {
	return ledger.Event{Module: ledger.Module, Name: name}
}

// Apply executes call on behalf of caller. Rule violations are returned as
// *ledger.DispatchError; any other error comes from the State.
func (p *Pallet) Apply(ctx context.Context, st State, caller string, call ledger.Call) ([]ledger.Event, error) {
	switch call.Method {
	case ledger.MethodCreateNamespace:
		return p.createNamespace(ctx, st, caller, call)
	case ledger.MethodAddManager, ledger.MethodRemoveManager:
		return p.manager(ctx, st, caller, call)
	case ledger.MethodCreateBucket:
		return p.createBucket(ctx, st, caller, call)
	case ledger.MethodAddAdmin, ledger.MethodRemoveAdmin:
		return p.admin(ctx, st, caller, call)
	case ledger.MethodAddContributor, ledger.MethodRemoveContributor:
		return p.contributor(ctx, st, caller, call)
	case ledger.MethodResumeWriting, ledger.MethodPauseWriting:
		return p.keyStatus(ctx, st, caller, call)
	case ledger.MethodCreateTag:
		return p.createTag(ctx, st, caller, call)
	case ledger.MethodWrite:
		return p.write(ctx, st, caller, call)
	case ledger.MethodRemoveNamespace:
		return p.removeNamespace(ctx, st, caller, call)
	case ledger.MethodRemoveBucket:
		return p.removeBucket(ctx, st, caller, call)
	case ledger.MethodRemoveMessage:
		return p.removeMessage(ctx, st, caller, call)
	}
	return nil, ErrUnknownCall
}

func (p *Pallet) namespace(ctx context.Context, st State, id uint64) (*ledger.Namespace, error) {
	ns, err := st.Namespace(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil, ErrNamespaceNotFound
	}
	return ns, err
}

func (p *Pallet) bucket(ctx context.Context, st State, namespaceID, bucketID uint64) (*ledger.Bucket, error) {
	b, err := st.Bucket(ctx, bucketID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, ErrBucketNotFound
	}
	if err != nil {
		return nil, err
	}
	if b.NamespaceID != namespaceID {
		return nil, ErrBucketNotFound
	}
	return b, nil
}

func (p *Pallet) createNamespace(ctx context.Context, st State, caller string, call ledger.Call) ([]ledger.Event, error) {
	_, err := st.Namespace(ctx, call.NamespaceID)
	if err == nil {
		return nil, ErrNamespaceAlreadyExists
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	ns := &ledger.Namespace{ID: call.NamespaceID, Metadata: call.Metadata, Managers: []string{caller}}
	if err := st.PutNamespace(ctx, ns); err != nil {
		return nil, err
	}

	e := event(ledger.EventNamespaceCreated)
	e.NamespaceID = ns.ID
	e.Account = caller
	return []ledger.Event{e}, nil
}

func (p *Pallet) manager(ctx context.Context, st State, caller string, call ledger.Call) ([]ledger.Event, error) {
	ns, err := p.namespace(ctx, st, call.NamespaceID)
	if err != nil {
		return nil, err
	}
	if !ns.IsManager(caller) {
		return nil, ErrNoPermission
	}

	name := ledger.EventManagerAdded
	if call.Method == ledger.MethodAddManager {
		if ns.Managers, err = addMember(ns.Managers, call.Account); err != nil {
			return nil, err
		}
	} else {
		name = ledger.EventManagerRemoved
		if ns.Managers, err = removeMember(ns.Managers, call.Account); err != nil {
			return nil, err
		}
	}
	if err := st.PutNamespace(ctx, ns); err != nil {
		return nil, err
	}

	e := event(name)
	e.NamespaceID = ns.ID
	e.Account = call.Account
	return []ledger.Event{e}, nil
}

func (p *Pallet) createBucket(ctx context.Context, st State, caller string, call ledger.Call) ([]ledger.Event, error) {
	ns, err := p.namespace(ctx, st, call.NamespaceID)
	if err != nil {
		return nil, err
	}
	if !ns.IsManager(caller) {
		return nil, ErrNoPermission
	}

	id, err := st.NextBucketID(ctx)
	if err != nil {
		return nil, err
	}
	b := &ledger.Bucket{ID: id, NamespaceID: ns.ID, Metadata: call.Metadata, Status: ledger.Locked()}
	if err := st.PutBucket(ctx, b); err != nil {
		return nil, err
	}
	ns.Buckets = append(ns.Buckets, id)
	if err := st.PutNamespace(ctx, ns); err != nil {
		return nil, err
	}

	e := event(ledger.EventBucketCreated)
	e.NamespaceID = ns.ID
	e.BucketID = id
	return []ledger.Event{e}, nil
}

func (p *Pallet) admin(ctx context.Context, st State, caller string, call ledger.Call) ([]ledger.Event, error) {
	ns, err := p.namespace(ctx, st, call.NamespaceID)
	if err != nil {
		return nil, err
	}
	if !ns.IsManager(caller) {
		return nil, ErrNoPermission
	}
	b, err := p.bucket(ctx, st, call.NamespaceID, call.BucketID)
	if err != nil {
		return nil, err
	}

	name := ledger.EventAdminAdded
	if call.Method == ledger.MethodAddAdmin {
		b.Admins, err = addMember(b.Admins, call.Account)
	} else {
		name = ledger.EventAdminRemoved
		b.Admins, err = removeMember(b.Admins, call.Account)
	}
	if err != nil {
		return nil, err
	}
	if err := st.PutBucket(ctx, b); err != nil {
		return nil, err
	}

	e := event(name)
	e.NamespaceID = b.NamespaceID
	e.BucketID = b.ID
	e.Account = call.Account
	return []ledger.Event{e}, nil
}

func (p *Pallet) adminBucket(ctx context.Context, st State, caller string, namespaceID, bucketID uint64) (*ledger.Bucket, error) {
	b, err := p.bucket(ctx, st, namespaceID, bucketID)
	if err != nil {
		return nil, err
	}
	if !b.IsAdmin(caller) {
		return nil, ErrNoPermission
	}
	return b, nil
}

func (p *Pallet) contributor(ctx context.Context, st State, caller string, call ledger.Call) ([]ledger.Event, error) {
	b, err := p.adminBucket(ctx, st, caller, call.NamespaceID, call.BucketID)
	if err != nil {
		return nil, err
	}

	name := ledger.EventContributorAdded
	if call.Method == ledger.MethodAddContributor {
		b.Contributors, err = addMember(b.Contributors, call.Account)
	} else {
		name = ledger.EventContributorRemoved
		b.Contributors, err = removeMember(b.Contributors, call.Account)
	}
	if err != nil {
		return nil, err
	}
	if err := st.PutBucket(ctx, b); err != nil {
		return nil, err
	}

	e := event(name)
	e.NamespaceID = b.NamespaceID
	e.BucketID = b.ID
	e.Account = call.Account
	return []ledger.Event{e}, nil
}

func (p *Pallet) keyStatus(ctx context.Context, st State, caller string, call ledger.Call) ([]ledger.Event, error) {
	b, err := p.adminBucket(ctx, st, caller, call.NamespaceID, call.BucketID)
	if err != nil {
		return nil, err
	}

	var e ledger.Event
	if call.Method == ledger.MethodResumeWriting {
		b.Status = ledger.WritableWithKey(call.KeyID)
		e = event(ledger.EventBucketWritableWithKey)
		e.KeyID = call.KeyID
	} else {
		b.Status = ledger.Paused(b.Status.KeyID)
		e = event(ledger.EventPausedBucket)
	}
	if err := st.PutBucket(ctx, b); err != nil {
		return nil, err
	}

	e.NamespaceID = b.NamespaceID
	e.BucketID = b.ID
	return []ledger.Event{e}, nil
}

func (p *Pallet) createTag(ctx context.Context, st State, caller string, call ledger.Call) ([]ledger.Event, error) {
	b, err := st.Bucket(ctx, call.BucketID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, ErrBucketNotFound
	}
	if err != nil {
		return nil, err
	}
	if !b.IsAdmin(caller) {
		return nil, ErrNoPermission
	}
	if call.Tag == "" || b.HasTag(call.Tag) {
		return nil, ErrTagAlreadyExists
	}

	b.Tags = append(b.Tags, call.Tag)
	if err := st.PutBucket(ctx, b); err != nil {
		return nil, err
	}

	e := event(ledger.EventNewTag)
	e.NamespaceID = b.NamespaceID
	e.BucketID = b.ID
	e.Tag = call.Tag
	return []ledger.Event{e}, nil
}

func (p *Pallet) write(ctx context.Context, st State, caller string, call ledger.Call) ([]ledger.Event, error) {
	b, err := p.bucket(ctx, st, call.NamespaceID, call.BucketID)
	if err != nil {
		return nil, err
	}
	if !b.CanWrite(caller) {
		return nil, ErrNoPermission
	}
	if !b.Status.Writable {
		return nil, ErrBucketLocked
	}
	if !b.HasTag(call.Tag) {
		return nil, ErrTagNotFound
	}
	if len(call.Reference) == 0 {
		return nil, ErrEmptyReference
	}

	id, err := st.NextMessageID(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	m := &ledger.MessageEntry{
		BucketID:    b.ID,
		MessageID:   id,
		Reference:   call.Reference,
		Tag:         call.Tag,
		Metadata:    call.Metadata,
		Contributor: caller,
	}
	if err := st.PutMessage(ctx, m); err != nil {
		return nil, err
	}

	e := event(ledger.EventNewMessage)
	e.NamespaceID = b.NamespaceID
	e.BucketID = b.ID
	e.MessageID = id
	e.Account = caller
	e.Tag = call.Tag
	return []ledger.Event{e}, nil
}

func (p *Pallet) requireRoot(caller string) error {
	if p.Root == "" || caller != p.Root {
		return ErrBadOrigin
	}
	return nil
}

func (p *Pallet) removeNamespace(ctx context.Context, st State, caller string, call ledger.Call) ([]ledger.Event, error) {
	if err := p.requireRoot(caller); err != nil {
		return nil, err
	}
	ns, err := p.namespace(ctx, st, call.NamespaceID)
	if err != nil {
		return nil, err
	}

	events := make([]ledger.Event, 0, len(ns.Buckets)+1)
	for _, id := range ns.Buckets {
		if err := st.DeleteBucket(ctx, id); err != nil && !errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		e := event(ledger.EventBucketDeleted)
		e.NamespaceID = ns.ID
		e.BucketID = id
		events = append(events, e)
	}
	if err := st.DeleteNamespace(ctx, ns.ID); err != nil {
		return nil, err
	}

	e := event(ledger.EventNamespaceDeleted)
	e.NamespaceID = ns.ID
	return append(events, e), nil
}

func (p *Pallet) removeBucket(ctx context.Context, st State, caller string, call ledger.Call) ([]ledger.Event, error) {
	if err := p.requireRoot(caller); err != nil {
		return nil, err
	}
	b, err := p.bucket(ctx, st, call.NamespaceID, call.BucketID)
	if err != nil {
		return nil, err
	}
	ns, err := p.namespace(ctx, st, b.NamespaceID)
	if err != nil {
		return nil, err
	}

	if err := st.DeleteBucket(ctx, b.ID); err != nil {
		return nil, err
	}
	ns.Buckets = slices.DeleteFunc(ns.Buckets, func(id uint64) bool { return id == b.ID })
	if err := st.PutNamespace(ctx, ns); err != nil {
		return nil, err
	}

	e := event(ledger.EventBucketDeleted)
	e.NamespaceID = b.NamespaceID
	e.BucketID = b.ID
	return []ledger.Event{e}, nil
}

func (p *Pallet) removeMessage(ctx context.Context, st State, caller string, call ledger.Call) ([]ledger.Event, error) {
	if err := p.requireRoot(caller); err != nil {
		return nil, err
	}
	err := st.DeleteMessage(ctx, call.BucketID, call.MessageID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}

	e := event(ledger.EventMessageDeleted)
	e.BucketID = call.BucketID
	e.MessageID = call.MessageID
	return []ledger.Event{e}, nil
}

func addMember(members []string, account string) ([]string, error) {
	if account == "" || slices.Contains(members, account) {
		return members, ErrAlreadyMember
	}
	return append(members, account), nil
}

func removeMember(members []string, account string) ([]string, error) {
	i := slices.Index(members, account)
	if i < 0 {
		return members, ErrNotMember
	}
	return slices.Delete(members, i, i+1), nil
}
