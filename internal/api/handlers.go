package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"keyledger/internal/core"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	token, expires, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		s.logger.Warn("login rejected", "email", req.Email)
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, loginResponse{Token: token, ExpiresAt: expires.UTC()})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.Logout(bearerToken(r))
	w.WriteHeader(http.StatusNoContent)
}

// Product keys

func (s *Server) handleListProductKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.svc.ListProductKeys(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, keys)
}

func (s *Server) handleCreateProductKey(w http.ResponseWriter, r *http.Request) {
	var key core.ProductKey
	if err := decode(r, &key); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := validateProductKey(key); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.createMu.Lock()
	defer s.createMu.Unlock()
	existing, err := s.svc.ListProductKeys(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := duplicateKey(existing, key.Key); err != nil {
		s.respondErr(w, r, err)
		return
	}
	created, _, err := s.svc.AddProductKey(r.Context(), key)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGenerateProductKey(w http.ResponseWriter, r *http.Request) {
	key, err := core.GenerateProductKey()
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"key": key})
}

func (s *Server) handleUpdateProductKey(w http.ResponseWriter, r *http.Request) {
	var key core.ProductKey
	if err := decode(r, &key); err != nil {
		s.respondErr(w, r, err)
		return
	}
	key.ID = mux.Vars(r)["id"]
	if err := validateProductKey(key); err != nil {
		s.respondErr(w, r, err)
		return
	}
	updated, _, err := s.svc.UpdateProductKey(r.Context(), key)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteProductKey(w http.ResponseWriter, r *http.Request) {
	s.respondDeleted(w, r, s.svc.DeleteProductKey)
}

// Categories

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.svc.ListCategories(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var category core.Category
	if err := decode(r, &category); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := validateCategory(category); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.createMu.Lock()
	defer s.createMu.Unlock()
	existing, err := s.svc.ListCategories(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := duplicateCategoryName(existing, category.Name); err != nil {
		s.respondErr(w, r, err)
		return
	}
	created, _, err := s.svc.AddCategory(r.Context(), category)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var category core.Category
	if err := decode(r, &category); err != nil {
		s.respondErr(w, r, err)
		return
	}
	category.ID = mux.Vars(r)["id"]
	if err := validateCategory(category); err != nil {
		s.respondErr(w, r, err)
		return
	}
	updated, _, err := s.svc.UpdateCategory(r.Context(), category)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	s.respondDeleted(w, r, s.svc.DeleteCategory)
}

// Customers

func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.svc.ListCustomers(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, customers)
}

func (s *Server) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var customer core.Customer
	if err := decode(r, &customer); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := validateCustomer(customer); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.createMu.Lock()
	defer s.createMu.Unlock()
	existing, err := s.svc.ListCustomers(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := duplicateEmail(existing, customer.Email); err != nil {
		s.respondErr(w, r, err)
		return
	}
	created, _, err := s.svc.AddCustomer(r.Context(), customer)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var customer core.Customer
	if err := decode(r, &customer); err != nil {
		s.respondErr(w, r, err)
		return
	}
	customer.ID = mux.Vars(r)["id"]
	if err := validateCustomer(customer); err != nil {
		s.respondErr(w, r, err)
		return
	}
	updated, _, err := s.svc.UpdateCustomer(r.Context(), customer)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	s.respondDeleted(w, r, s.svc.DeleteCustomer)
}

// Allocations

func (s *Server) handleListAllocations(w http.ResponseWriter, r *http.Request) {
	allocations, err := s.svc.ListAllocations(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, allocations)
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req core.AllocationRequest
	if err := decode(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := validateAllocation(req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	created, _, err := s.svc.AllocateKey(r.Context(), req)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeallocate(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.DeallocateKey(r.Context(), mux.Vars(r)["productKeyId"]); err != nil {
		s.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Inventory

func (s *Server) handleListInventory(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.ListInventoryItems(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateInventoryItem(w http.ResponseWriter, r *http.Request) {
	var item core.InventoryItem
	if err := decode(r, &item); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := validateInventoryItem(item); err != nil {
		s.respondErr(w, r, err)
		return
	}
	created, _, err := s.svc.AddInventoryItem(r.Context(), item)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateInventoryItem(w http.ResponseWriter, r *http.Request) {
	var item core.InventoryItem
	if err := decode(r, &item); err != nil {
		s.respondErr(w, r, err)
		return
	}
	item.ID = mux.Vars(r)["id"]
	if err := validateInventoryItem(item); err != nil {
		s.respondErr(w, r, err)
		return
	}
	updated, _, err := s.svc.UpdateInventoryItem(r.Context(), item)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteInventoryItem(w http.ResponseWriter, r *http.Request) {
	s.respondDeleted(w, r, s.svc.DeleteInventoryItem)
}

func (s *Server) handleRecordPurchase(w http.ResponseWriter, r *http.Request) {
	var purchase core.Purchase
	if err := decode(r, &purchase); err != nil {
		s.respondErr(w, r, err)
		return
	}
	purchase.InventoryItemID = mux.Vars(r)["id"]
	if err := validateQuantity(purchase.Quantity); err != nil {
		s.respondErr(w, r, err)
		return
	}
	created, _, err := s.svc.RecordPurchase(r.Context(), purchase)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, purchaseResponse{Purchase: created, Total: created.Total().StringFixed(2)})
}

type purchaseResponse struct {
	core.Purchase
	Total string `json:"total"`
}

func (s *Server) handleRecordUsage(w http.ResponseWriter, r *http.Request) {
	var usage core.Usage
	if err := decode(r, &usage); err != nil {
		s.respondErr(w, r, err)
		return
	}
	usage.InventoryItemID = mux.Vars(r)["id"]
	if err := validateQuantity(usage.Quantity); err != nil {
		s.respondErr(w, r, err)
		return
	}
	created, _, err := s.svc.RecordUsage(r.Context(), usage)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Dashboard(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) respondDeleted(w http.ResponseWriter, r *http.Request, del func(ctx context.Context, id string) (core.Result, error)) {
	if _, err := del(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
