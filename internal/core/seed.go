package core

import (
	"time"

	"keyledger/internal/infra/persistence/memory"
	"keyledger/pkg/domain"
)

const day = 24 * time.Hour

// DemoSeed returns the dataset installed when no complete snapshot has been
// persisted. Timestamps are relative to now.
func DemoSeed(now time.Time) memory.Snapshot {
	now = now.UTC().Truncate(time.Millisecond)
	at := func(days int) time.Time { return now.Add(time.Duration(days) * day) }
	expires := func(days int) *time.Time { return domain.TimePtr(at(days)) }
	str := domain.StringPtr

	return memory.Snapshot{
		Categories: []Category{
			{ID: "1", Name: "Developer Tools", Description: str("IDEs and programming utilities"), Color: "#1E40AF"},
			{ID: "2", Name: "Office Suite", Description: str("Productivity and office applications"), Color: "#0D9488"},
			{ID: "3", Name: "Security Software", Description: str("Antivirus and security applications"), Color: "#7C3AED"},
			uncategorized(),
		},
		Customers: []Customer{
			{ID: "1", Name: "John Smith", Email: "john.smith@example.com", Phone: str("555-123-4567"), Company: str("Tech Solutions Inc.")},
			{ID: "2", Name: "Sarah Johnson", Email: "sarah.j@acme.org", Phone: str("555-987-6543"), Company: str("Acme Corporation")},
			{ID: "3", Name: "Michael Brown", Email: "michael.b@globex.net", Phone: str("555-456-7890"), Company: str("Globex Systems")},
		},
		ProductKeys: []ProductKey{
			{ID: "1", Key: "DEV-12345-ABCDE-67890", CategoryID: "1", Status: KeyStatusAvailable, CreatedAt: at(-30), ExpiresAt: expires(335)},
			{ID: "2", Key: "OFF-54321-FGHIJ-09876", CategoryID: "2", Status: KeyStatusAllocated, CreatedAt: at(-60), ExpiresAt: expires(305)},
			{ID: "3", Key: "SEC-98765-KLMNO-43210", CategoryID: "3", Status: KeyStatusAvailable, CreatedAt: at(-15), ExpiresAt: expires(350)},
			{ID: "4", Key: "DEV-67890-PQRST-12345", CategoryID: "1", Status: KeyStatusAllocated, CreatedAt: at(-45), ExpiresAt: expires(320)},
			{ID: "5", Key: "OFF-09876-UVWXY-54321", CategoryID: "2", Status: KeyStatusExpired, CreatedAt: at(-380), ExpiresAt: expires(-15)},
		},
		Allocations: []Allocation{
			{ID: "1", ProductKeyID: "2", CustomerID: "1", AllocatedAt: at(-30), Notes: str("Annual office suite license")},
			{ID: "2", ProductKeyID: "4", CustomerID: "2", AllocatedAt: at(-15), Notes: str("Development IDE license")},
		},
	}
}

// EmptySeed returns a dataset holding only the uncategorized category.
func EmptySeed(time.Time) memory.Snapshot {
	return memory.Snapshot{Categories: []Category{uncategorized()}}
}

func uncategorized() Category {
	return domain.UncategorizedCategory()
}
