package models

// DefaultWarehouseID is the reserved warehouse every user owns. It can be renamed but never deleted.
const DefaultWarehouseID = "default"

// Warehouse scopes a counting session.
type Warehouse struct {
	ID   string `bson:"warehouse_id" json:"id"`
	Name string `bson:"name" json:"name"`
}

// IsDefault reports whether the warehouse is the reserved default one.
func (w Warehouse) IsDefault() bool {
	return w.ID == DefaultWarehouseID
}
