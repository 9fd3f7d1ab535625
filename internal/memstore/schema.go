package memstore

import "github.com/hashicorp/go-memdb"

const (
	tableVariant     = "variant"
	tableStock       = "stock"
	tableCart        = "cart"
	tableReservation = "reservation"
	tableOrder       = "order"
)

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableVariant: {
				Name: tableVariant,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
				},
			},
			tableStock: {
				Name: tableStock,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "VariantID"}},
				},
			},
			tableCart: {
				Name: tableCart,
				Indexes: map[string]*memdb.IndexSchema{
					"id":   {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"user": {Name: "user", AllowMissing: true, Indexer: &memdb.StringFieldIndex{Field: "UserID"}},
				},
			},
			tableReservation: {
				Name: tableReservation,
				Indexes: map[string]*memdb.IndexSchema{
					"id":    {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"cart":  {Name: "cart", AllowMissing: true, Indexer: &memdb.StringFieldIndex{Field: "CartID"}},
					"order": {Name: "order", AllowMissing: true, Indexer: &memdb.StringFieldIndex{Field: "OrderID"}},
					"cart_variant": {
						Name:         "cart_variant",
						AllowMissing: true,
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "CartID"},
							&memdb.StringFieldIndex{Field: "VariantID"},
						}},
					},
				},
			},
			tableOrder: {
				Name: tableOrder,
				Indexes: map[string]*memdb.IndexSchema{
					"id":     {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"status": {Name: "status", Indexer: &memdb.StringFieldIndex{Field: "Status"}},
				},
			},
		},
	}
}
