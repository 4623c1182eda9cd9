package contacts

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBookResolveByNameAndAlias(t *testing.T) {
	book := NewBook([]Contact{
		{Name: "Bob", Address: "bob-relay", Chain: "polkadot", Aliases: []string{"bobby"}},
		{Name: "Bob", Address: "bob-hub", Chain: "asset-hub-polkadot"},
		{Name: "Carol Ann", Address: "carol", Chain: "moonbeam"},
	})

	if c, ok := book.Resolve("BOBBY", ""); !ok || c.Address != "bob-relay" {
		t.Fatalf("expected alias lookup to succeed, got %+v ok=%v", c, ok)
	}
	if c, ok := book.Resolve("bob", "asset-hub-polkadot"); !ok || c.Address != "bob-hub" {
		t.Fatalf("expected chain-specific contact, got %+v", c)
	}
	if c, ok := book.Resolve("  carol   ann ", "polkadot"); !ok || c.Address != "carol" {
		t.Fatalf("expected whitespace-insensitive match, got %+v", c)
	}
	if _, ok := book.Resolve("dave", ""); ok {
		t.Fatalf("did not expect unknown contact to resolve")
	}

	var empty *Book
	if _, ok := empty.Resolve("bob", ""); ok {
		t.Fatalf("nil book must not resolve")
	}
}

func TestLoadBook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	if err := os.WriteFile(path, []byte(`[{"name":"alice","address":"5Grw","chain":"polkadot"}]`), 0o600); err != nil {
		t.Fatalf("write contacts: %v", err)
	}
	book, err := LoadBook(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(book.All()) != 1 {
		t.Fatalf("expected one contact")
	}

	if err := os.WriteFile(path, []byte(`[{"name":"alice"}]`), 0o600); err != nil {
		t.Fatalf("write contacts: %v", err)
	}
	if _, err := LoadBook(path); err == nil {
		t.Fatalf("expected error for contact without address")
	}
	if _, err := LoadBook(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
