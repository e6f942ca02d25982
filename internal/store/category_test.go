// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"quillpress/internal/models"
)

func TestCategoryStoreHierarchy(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	t.Cleanup(func() { cleanCategories(t, db, "store-tech", "store-prog") })

	root, err := s.Create(bg, &models.Category{Name: "Store Tech", Slug: "store-tech", IsActive: true})
	if err != nil {
		t.Fatalf("Create root: %v", err)
	}
	child, err := s.Create(bg, &models.Category{Name: "Store Prog", Slug: "store-prog", ParentID: &root.ID, IsActive: true, DisplayOrder: 3})
	if err != nil {
		t.Fatalf("Create child: %v", err)
	}

	taken, err := s.NameTaken(bg, "STORE TECH", nil)
	if err != nil || !taken {
		t.Errorf("NameTaken = %v, %v; want true", taken, err)
	}
	taken, err = s.NameTaken(bg, "Store Tech", &root.ID)
	if err != nil || taken {
		t.Errorf("NameTaken excluding self = %v, %v; want false", taken, err)
	}

	n, err := s.CountChildren(bg, root.ID)
	if err != nil || n != 1 {
		t.Errorf("CountChildren = %d, %v; want 1", n, err)
	}
	next, err := s.NextDisplayOrder(bg, &root.ID)
	if err != nil || next != 4 {
		t.Errorf("NextDisplayOrder = %d, %v; want 4", next, err)
	}

	if err := s.Delete(bg, root.ID); !errors.Is(err, ErrForeignKey) {
		t.Errorf("Delete parent: err = %v, want ErrForeignKey", err)
	}

	if err := s.SetActive(bg, []uuid.UUID{root.ID, child.ID}, false, time.Now()); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	got, err := s.FindByID(bg, child.ID)
	if err != nil || got.IsActive {
		t.Errorf("child active after SetActive(false): %+v, %v", got, err)
	}

	if err := s.SetParent(bg, child.ID, nil, time.Now()); err != nil {
		t.Fatalf("SetParent: %v", err)
	}
	roots, err := s.ListChildren(bg, nil)
	if err != nil {
		t.Fatalf("ListChildren(nil): %v", err)
	}
	found := false
	for _, c := range roots {
		if c.ID == child.ID {
			found = true
		}
	}
	if !found {
		t.Error("reparented category missing from roots")
	}
}

func TestCategoryStoreLockHierarchy(t *testing.T) {
	db := testDB(t)
	tx, err := db.BeginTx(bg, nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	defer tx.Rollback()

	if err := NewCategoryStore(tx).LockHierarchy(bg); err != nil {
		t.Errorf("LockHierarchy: %v", err)
	}
}
