package core

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	renewalWindow        = 30 * day
	recentAllocationSize = 5
)

// Dashboard summarises the store for the landing page.
type Dashboard struct {
	TotalKeys         int                `json:"totalKeys"`
	AvailableKeys     int                `json:"availableKeys"`
	AllocatedKeys     int                `json:"allocatedKeys"`
	ExpiredKeys       int                `json:"expiredKeys"`
	TotalCustomers    int                `json:"totalCustomers"`
	TotalCategories   int                `json:"totalCategories"`
	KeysByCategory    []CategoryCount    `json:"keysByCategory"`
	UpcomingRenewals  []Renewal          `json:"upcomingRenewals"`
	RecentAllocations []AllocationDetail `json:"recentAllocations"`
	LowStockItems     []InventoryItem    `json:"lowStockItems"`
	GeneratedAt       time.Time          `json:"generatedAt"`
}

// CategoryCount is the number of keys filed under one category.
type CategoryCount struct {
	CategoryID string `json:"categoryId"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	Count      int    `json:"count"`
}

// Renewal is a key expiring inside the renewal window.
type Renewal struct {
	ProductKey ProductKey `json:"productKey"`
	Customer   *Customer  `json:"customer,omitempty"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	// NotifyURL is a WhatsApp click-to-chat link when the customer has a phone.
	NotifyURL string `json:"notifyUrl,omitempty"`
}

// AllocationDetail joins an allocation with its key text and customer name.
type AllocationDetail struct {
	Allocation   Allocation `json:"allocation"`
	Key          string     `json:"key"`
	CustomerName string     `json:"customerName"`
}

// Dashboard computes the summary from one consistent view.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	now := s.clock.Now().UTC()
	var out Dashboard
	err := s.store.View(ctx, func(view TransactionView) error {
		out = buildDashboard(view, now)
		return nil
	})
	return out, err
}

func buildDashboard(view TransactionView, now time.Time) Dashboard {
	keys := view.ListProductKeys()
	categories := view.ListCategories()
	customers := view.ListCustomers()
	allocations := view.ListAllocations()

	d := Dashboard{
		TotalKeys:         len(keys),
		TotalCustomers:    len(customers),
		TotalCategories:   len(categories),
		KeysByCategory:    make([]CategoryCount, 0, len(categories)),
		UpcomingRenewals:  []Renewal{},
		RecentAllocations: []AllocationDetail{},
		LowStockItems:     []InventoryItem{},
		GeneratedAt:       now,
	}

	counts := make(map[string]int, len(categories))
	for _, k := range keys {
		switch k.Status {
		case KeyStatusAvailable:
			d.AvailableKeys++
		case KeyStatusAllocated:
			d.AllocatedKeys++
		case KeyStatusExpired:
			d.ExpiredKeys++
		}
		if _, ok := view.FindCategory(k.CategoryID); ok {
			counts[k.CategoryID]++
		} else {
			counts[UncategorizedCategoryID]++
		}
	}
	for _, c := range categories {
		d.KeysByCategory = append(d.KeysByCategory, CategoryCount{CategoryID: c.ID, Name: c.Name, Color: c.Color, Count: counts[c.ID]})
	}

	holder := func(keyID string) *Customer {
		for _, a := range view.AllocationsForKey(keyID) {
			if c, ok := view.FindCustomer(a.CustomerID); ok {
				return &c
			}
		}
		return nil
	}
	horizon := now.Add(renewalWindow)
	for _, k := range keys {
		if k.ExpiresAt == nil || k.ExpiresAt.Before(now) || k.ExpiresAt.After(horizon) {
			continue
		}
		r := Renewal{ProductKey: k, Customer: holder(k.ID), ExpiresAt: *k.ExpiresAt}
		if r.Customer != nil && r.Customer.Phone != nil {
			r.NotifyURL = renewalNotifyURL(*r.Customer, k)
		}
		d.UpcomingRenewals = append(d.UpcomingRenewals, r)
	}
	sort.SliceStable(d.UpcomingRenewals, func(i, j int) bool {
		return d.UpcomingRenewals[i].ExpiresAt.Before(d.UpcomingRenewals[j].ExpiresAt)
	})

	recent := append([]Allocation(nil), allocations...)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].AllocatedAt.After(recent[j].AllocatedAt) })
	if len(recent) > recentAllocationSize {
		recent = recent[:recentAllocationSize]
	}
	for _, a := range recent {
		detail := AllocationDetail{Allocation: a, Key: "Unknown Key", CustomerName: "Unknown Customer"}
		if k, ok := view.FindProductKey(a.ProductKeyID); ok {
			detail.Key = k.Key
		}
		if c, ok := view.FindCustomer(a.CustomerID); ok {
			detail.CustomerName = c.Name
		}
		d.RecentAllocations = append(d.RecentAllocations, detail)
	}

	for _, item := range view.ListInventoryItems() {
		if item.NeedsReorder() {
			d.LowStockItems = append(d.LowStockItems, item)
		}
	}
	return d
}

func renewalNotifyURL(c Customer, k ProductKey) string {
	phone := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, *c.Phone)
	msg := fmt.Sprintf("Hello %s, your product key %s will expire on %s. Please contact us for renewal.",
		c.Name, k.Key, k.ExpiresAt.Format("January 02, 2006"))
	return "https://wa.me/" + phone + "?text=" + url.QueryEscape(msg)
}
