package model

import "sort"

// TransactionItem is one purchased item inside a date bucket.
type TransactionItem struct {
	Item  string `json:"item"`
	Buyer string `json:"buyer"`
}

// Transactions maps a date-bucket key ("M D YYYY", 1-based month) to the
// items purchased on that date. Read-only from the client's perspective.
type Transactions map[string][]TransactionItem

// Buckets returns the date-bucket keys, sorted.
func (t Transactions) Buckets() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Buyer returns the buyer recorded on the first item of the bucket, or ""
// when the bucket is empty or unknown.
func (t Transactions) Buyer(bucket string) string {
	items := t[bucket]
	if len(items) == 0 {
		return ""
	}
	return items[0].Buyer
}
