package store

import (
	"fmt"

	"github.com/bangazon/checkout/internal/store/db"
	"github.com/google/uuid"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Seed is the catalog loaded into a MemoryStore for local runs.
type Seed struct {
	Products     []SeedProduct     `koanf:"products"`
	PaymentTypes []SeedPaymentType `koanf:"paymenttypes"`
}

type SeedProduct struct {
	ID       string `koanf:"id"`
	Title    string `koanf:"title"`
	Price    int64  `koanf:"price"`
	Quantity int32  `koanf:"quantity"`
	Active   *bool  `koanf:"active"`
}

type SeedPaymentType struct {
	ID            string `koanf:"id"`
	UserID        string `koanf:"userid"`
	Description   string `koanf:"description"`
	AccountNumber string `koanf:"accountnumber"`
	Active        *bool  `koanf:"active"`
}

// LoadSeed reads a seed YAML file.
func LoadSeed(path string) (*Seed, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	var seed Seed
	if err := k.Unmarshal("", &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &seed, nil
}

// Apply inserts the seeded products and payment types. Entries are active unless stated otherwise.
func (s *Seed) Apply(ms *MemoryStore) error {
	for i, p := range s.Products {
		id, err := uuid.Parse(p.ID)
		if err != nil {
			return fmt.Errorf("product #%d: invalid id %q: %w", i, p.ID, err)
		}
		if p.Quantity < 0 || p.Price < 0 {
			return fmt.Errorf("product %s: price and quantity must not be negative", id)
		}
		ms.PutProduct(db.Product{ID: id, Title: p.Title, Price: p.Price, Quantity: p.Quantity, Active: activeOrDefault(p.Active)})
	}
	for i, pt := range s.PaymentTypes {
		id, err := uuid.Parse(pt.ID)
		if err != nil {
			return fmt.Errorf("payment type #%d: invalid id %q: %w", i, pt.ID, err)
		}
		userID, err := uuid.Parse(pt.UserID)
		if err != nil {
			return fmt.Errorf("payment type %s: invalid user id %q: %w", id, pt.UserID, err)
		}
		ms.PutPaymentType(db.PaymentType{
			ID:            id,
			UserID:        userID,
			Description:   pt.Description,
			AccountNumber: pt.AccountNumber,
			Active:        activeOrDefault(pt.Active),
		})
	}
	return nil
}

func activeOrDefault(active *bool) bool {
	return active == nil || *active
}
