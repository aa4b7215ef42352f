package domain

import "time"

// SeedAdminID is the identifier of the administrator present in a fresh
// document.
const SeedAdminID = "admin-manuel"

// SeedDocument returns the document written when the store holds no
// document yet: one administrator and empty collections.
func SeedDocument(now time.Time) Document {
	doc := Document{
		Users: []User{{
			ID:         SeedAdminID,
			Nome:       "Manuel",
			Cognome:    "Berno",
			AvatarType: "custom",
			AvatarID:   "festeggiato",
			IsAdmin:    true,
			CreatedAt:  now,
		}},
	}
	doc.Normalize()
	return doc
}
