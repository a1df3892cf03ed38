package cache

import (
	"errors"
	"testing"
	"time"

	"grocerybuddy/internal/model"
)

func setupCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLoadMissing(t *testing.T) {
	c := setupCache(t)

	var list model.GroceryList
	if _, err := c.Load("house-1", KindList, &list); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("err = %v, want ErrNoSnapshot", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := setupCache(t)

	in := model.GroceryList{
		"Produce": {{ID: "1", Item: "apple"}},
	}
	fetchedAt := time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)
	if err := c.Save("house-1", KindList, in, fetchedAt); err != nil {
		t.Fatalf("save: %v", err)
	}

	var out model.GroceryList
	got, err := c.Load("house-1", KindList, &out)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Equal(fetchedAt) {
		t.Errorf("fetched_at = %v, want %v", got, fetchedAt)
	}
	if len(out["Produce"]) != 1 || out["Produce"][0].Item != "apple" {
		t.Errorf("payload = %v", out)
	}
}

func TestSaveReplacesSnapshot(t *testing.T) {
	c := setupCache(t)

	first := model.GroceryList{"Produce": {{ID: "1", Item: "apple"}}}
	second := model.GroceryList{"Dairy": {{ID: "2", Item: "milk"}}}

	if err := c.Save("house-1", KindList, first, time.Now()); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := c.Save("house-1", KindList, second, time.Now()); err != nil {
		t.Fatalf("save second: %v", err)
	}

	var out model.GroceryList
	if _, err := c.Load("house-1", KindList, &out); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := out["Produce"]; ok {
		t.Error("expected first snapshot to be fully replaced")
	}
	if len(out["Dairy"]) != 1 {
		t.Errorf("payload = %v", out)
	}
}

func TestKindsAreIndependent(t *testing.T) {
	c := setupCache(t)

	list := model.GroceryList{"Produce": {{ID: "1", Item: "apple"}}}
	tx := model.Transactions{"3 14 2024": {{Item: "milk", Buyer: "ann"}}}

	if err := c.Save("house-1", KindList, list, time.Now()); err != nil {
		t.Fatalf("save list: %v", err)
	}
	if err := c.Save("house-1", KindTransactions, tx, time.Now()); err != nil {
		t.Fatalf("save transactions: %v", err)
	}

	var outTx model.Transactions
	if _, err := c.Load("house-1", KindTransactions, &outTx); err != nil {
		t.Fatalf("load transactions: %v", err)
	}
	if outTx.Buyer("3 14 2024") != "ann" {
		t.Errorf("transactions = %v", outTx)
	}
}

func TestClear(t *testing.T) {
	c := setupCache(t)

	list := model.GroceryList{"Produce": {{ID: "1", Item: "apple"}}}
	if err := c.Save("house-1", KindList, list, time.Now()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	var out model.GroceryList
	if _, err := c.Load("house-1", KindList, &out); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("err = %v, want ErrNoSnapshot after clear", err)
	}
}
