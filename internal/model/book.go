package model

import "time"

// Book mirrors the `books` table.  TotalCopies is how many physical
// copies the library owns; AvailableCopies is how many are free to
// check out right now.  The invariant 0 <= available <= total is
// enforced by guarded SQL updates in the repository layer, and the
// stored counter can always be cross-checked against the computed
// figure total - count(open loans).
type Book struct {
	ID              uint64    // books.id
	ISBN            *string   // books.isbn (nullable, unique)
	Title           string    // books.title
	Author          string    // books.author
	Publisher       *string   // books.publisher (nullable)
	PublicationYear *int      // books.publication_year (nullable)
	Category        *string   // books.category (nullable)
	TotalCopies     int       // books.total_copies
	AvailableCopies int       // books.available_copies
	Description     *string   // books.description (nullable)
	CreatedAt       time.Time // books.created_at
	UpdatedAt       time.Time // books.updated_at
}
