package models

import "gorm.io/datatypes"

// Apartment stores an apartment document exactly as it was imported from the
// legacy store. Field names vary between generations of that store, so the
// document is only read through the directory package, which normalizes it.
type Apartment struct {
	ID       string         `gorm:"primaryKey;size:64" json:"id"`
	Document datatypes.JSON `json:"document"`
}
