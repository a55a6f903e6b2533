package documents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func setup(t *testing.T) (*Service, *memory.Store, string) {
	t.Helper()
	gw := memory.New()
	user, err := gw.RegisterUser(context.Background(), "leo@example.com", "secret123")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	return NewService(gw, gw), gw, user.ID
}

func invoiceInput() Input {
	return Input{
		Type:        core.Invoice,
		Title:       "Factura mensual",
		ClientName:  "Cliente SA",
		CompanyName: "Mi Empresa",
		PaidARS:     dec("100"),
		Items: []ItemInput{
			{Description: "Consultoría", Quantity: dec("2"), UnitPrice: dec("50"), Currency: core.ARS},
			{Description: "Soporte", Quantity: dec("1"), UnitPrice: dec("50"), Currency: core.ARS},
		},
	}
}

func TestCreateComputesTotalFromItems(t *testing.T) {
	svc, _, userID := setup(t)

	doc, items, err := svc.Create(context.Background(), userID, invoiceInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc.ID == "" {
		t.Fatal("expected assigned document id")
	}
	if !doc.Total.Equal(dec("150")) {
		t.Errorf("total = %s, want 150", doc.Total)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 stored items, got %d", len(items))
	}
	for _, it := range items {
		if it.DocumentID != doc.ID {
			t.Errorf("item %s not linked to document", it.ID)
		}
	}
}

func TestCreateRejectsEmptyItems(t *testing.T) {
	svc, _, userID := setup(t)

	in := invoiceInput()
	in.Items = nil
	if _, _, err := svc.Create(context.Background(), userID, in); !errors.Is(err, core.ErrNoItems) {
		t.Fatalf("expected ErrNoItems, got %v", err)
	}
}

func TestCreateRejectsInvalidItem(t *testing.T) {
	svc, _, userID := setup(t)

	in := invoiceInput()
	in.Items[1].Quantity = dec("0")
	_, _, err := svc.Create(context.Background(), userID, in)
	if !errors.Is(err, core.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if !strings.Contains(err.Error(), "item 2") {
		t.Errorf("error should name the offending item: %v", err)
	}
}

func TestTotalsPerCurrency(t *testing.T) {
	svc, _, userID := setup(t)

	in := invoiceInput()
	in.PaidUSD = dec("10")
	in.Items = append(in.Items, ItemInput{
		Description: "Licencia", Quantity: dec("1"), UnitPrice: dec("30"), Currency: core.USD,
	})

	doc, items, err := svc.Create(context.Background(), userID, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	totals := Totals(doc, items)
	if len(totals) != 2 {
		t.Fatalf("expected ARS and USD totals, got %+v", totals)
	}
	ars, usd := totals[0], totals[1]
	if ars.Currency != core.ARS || !ars.Total.Equal(dec("150")) || !ars.Paid.Equal(dec("100")) || !ars.Due.Equal(dec("50")) {
		t.Errorf("ARS totals = %+v", ars)
	}
	if usd.Currency != core.USD || !usd.Total.Equal(dec("30")) || !usd.Due.Equal(dec("20")) {
		t.Errorf("USD totals = %+v", usd)
	}
}

func TestTotalsOmitsIdleCurrency(t *testing.T) {
	svc, _, userID := setup(t)

	doc, items, err := svc.Create(context.Background(), userID, invoiceInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	totals := Totals(doc, items)
	if len(totals) != 1 || totals[0].Currency != core.ARS {
		t.Fatalf("expected only ARS totals, got %+v", totals)
	}
}

func TestUpdateReplacesItemsAndTotal(t *testing.T) {
	svc, gw, userID := setup(t)
	ctx := context.Background()

	doc, _, err := svc.Create(ctx, userID, invoiceInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	in := invoiceInput()
	in.Title = "Factura corregida"
	in.Items = []ItemInput{
		{Description: "Única línea", Quantity: dec("3"), UnitPrice: dec("40"), Currency: core.ARS},
	}

	updated, items, err := svc.Update(ctx, doc.ID, userID, in)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "Factura corregida" {
		t.Errorf("title = %q", updated.Title)
	}
	if !updated.Total.Equal(dec("120")) {
		t.Errorf("total = %s, want 120", updated.Total)
	}
	if len(items) != 1 {
		t.Fatalf("expected the old items replaced, got %d", len(items))
	}

	stored, err := gw.ListDocumentItems(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListDocumentItems: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored items = %d, want 1", len(stored))
	}
}

func TestUpdateKeepsExistingLogo(t *testing.T) {
	svc, _, userID := setup(t)
	ctx := context.Background()

	in := invoiceInput()
	in.Logo = &LogoUpload{Filename: "logo.png", Data: []byte{1, 2, 3}}
	doc, _, err := svc.Create(ctx, userID, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc.LogoURL == "" {
		t.Fatal("expected logo url after upload")
	}

	updated, _, err := svc.Update(ctx, doc.ID, userID, invoiceInput())
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.LogoURL != doc.LogoURL {
		t.Errorf("logo url changed from %q to %q", doc.LogoURL, updated.LogoURL)
	}
}

func TestDeleteRemovesItemsFirst(t *testing.T) {
	svc, gw, userID := setup(t)
	ctx := context.Background()

	doc, _, err := svc.Create(ctx, userID, invoiceInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Delete(ctx, doc.ID, userID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := gw.GetDocument(ctx, doc.ID, userID); err == nil {
		t.Error("document still present after delete")
	}
	items, err := gw.ListDocumentItems(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListDocumentItems: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("items survived delete: %+v", items)
	}
}

func TestDeleteUnknownDocument(t *testing.T) {
	svc, _, userID := setup(t)
	if err := svc.Delete(context.Background(), "missing", userID); err == nil {
		t.Fatal("expected error for unknown document")
	}
}

func TestLogoUploadFailureDoesNotBlockCreate(t *testing.T) {
	gw := memory.New()
	user, err := gw.RegisterUser(context.Background(), "leo@example.com", "secret123")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	svc := NewService(gw, failingLogos{})

	in := invoiceInput()
	in.Logo = &LogoUpload{Filename: "logo.png", Data: []byte{1}}
	doc, _, err := svc.Create(context.Background(), user.ID, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc.LogoURL != "" {
		t.Errorf("expected empty logo url, got %q", doc.LogoURL)
	}
}

func TestCreateWithoutLogoStore(t *testing.T) {
	gw := memory.New()
	user, err := gw.RegisterUser(context.Background(), "leo@example.com", "secret123")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	svc := NewService(gw, nil)

	in := invoiceInput()
	in.Logo = &LogoUpload{Filename: "logo.png", Data: []byte{1}}
	if _, _, err := svc.Create(context.Background(), user.ID, in); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestCreateRollsBackOnItemFailure(t *testing.T) {
	gw := memory.New()
	user, err := gw.RegisterUser(context.Background(), "leo@example.com", "secret123")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	svc := NewService(&itemFailGateway{Store: gw, failAfter: 1}, nil)

	_, _, err = svc.Create(context.Background(), user.ID, invoiceInput())
	if err == nil {
		t.Fatal("expected item insert failure")
	}

	docs, err := gw.ListDocuments(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("partial document left behind: %+v", docs)
	}
}

type failingLogos struct{}

func (failingLogos) Upload(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("bucket unavailable")
}

// itemFailGateway lets the first failAfter item inserts through and
// rejects the rest.
type itemFailGateway struct {
	*memory.Store
	failAfter int
	inserted  int
}

func (g *itemFailGateway) InsertDocumentItem(ctx context.Context, it core.DocumentItem) (core.DocumentItem, error) {
	if g.inserted >= g.failAfter {
		return core.DocumentItem{}, errors.New("item insert refused")
	}
	g.inserted++
	return g.Store.InsertDocumentItem(ctx, it)
}
