package models

// ChangeOp is the kind of a remote change notification.
type ChangeOp string

const (
	ChangeUpsert ChangeOp = "upsert"
	ChangeDelete ChangeOp = "delete"
)

// ItemChange is one committed change to a counting list item.
type ItemChange struct {
	Op      ChangeOp
	Barcode string
	// Item is set for upserts.
	Item CountingListItem
}

// ChangeSet groups the changes committed together by the remote store.
// A batch write arrives as a single ChangeSet so consumers never observe it half applied.
type ChangeSet struct {
	WarehouseID string
	Changes     []ItemChange
	// Snapshot marks the initial full state delivered right after subscribing.
	Snapshot bool
}

// ItemOp is one operation of a batched counting list write.
type ItemOp struct {
	Op      ChangeOp
	Barcode string
	Item    CountingListItem
}

// PutOp builds an upsert operation.
func PutOp(item CountingListItem) ItemOp {
	return ItemOp{Op: ChangeUpsert, Barcode: item.Barcode, Item: item}
}

// DeleteOp builds a delete operation.
func DeleteOp(barcode string) ItemOp {
	return ItemOp{Op: ChangeDelete, Barcode: barcode}
}
