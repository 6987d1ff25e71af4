package neolink

import "maps"

// NotionKey addresses the notion properties staged for one link: the relation,
// the entity whose endpoint is being set, and the entity on the other side.
type NotionKey struct {
	Relation string
	OwnerID  string
	OtherID  string
}

// NotionStore holds notion properties staged for the current operation. It is
// created with each Session and never shared between operations.
type NotionStore struct {
	bags map[NotionKey]map[string]any
}

func NewNotionStore() *NotionStore {
	return &NotionStore{bags: map[NotionKey]map[string]any{}}
}

// Put stages props for key, merging into anything already staged.
func (n *NotionStore) Put(key NotionKey, props map[string]any) {
	bag, ok := n.bags[key]
	if !ok {
		bag = make(map[string]any, len(props))
		n.bags[key] = bag
	}
	maps.Copy(bag, props)
}

// Get returns a copy of the properties staged for key, or nil.
func (n *NotionStore) Get(key NotionKey) map[string]any {
	if n == nil {
		return nil
	}
	bag, ok := n.bags[key]
	if !ok {
		return nil
	}
	return maps.Clone(bag)
}

func (n *NotionStore) Len() int { return len(n.bags) }
func (n *NotionStore) Reset()   { clear(n.bags) }
