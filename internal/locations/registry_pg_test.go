package locations

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRegistryExactMatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("FROM locations WHERE upper\\(name\\) = \\$1").
		WithArgs("KOVILPATTI").
		WillReturnRows(sqlmock.NewRows([]string{"name", "verified"}).AddRow("Kovilpatti", true))

	reg := &PGRegistry{DB: db}
	m, ok, err := reg.Lookup(context.Background(), "KOVILPATTI")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok || m.Name != "KOVILPATTI" || m.Source != SourceExact || m.Confidence != 1 {
		t.Fatalf("unexpected match: %+v ok=%v", m, ok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRegistryFuzzyMatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("FROM locations WHERE upper\\(name\\) = \\$1").
		WithArgs("SATHUR").
		WillReturnRows(sqlmock.NewRows([]string{"name", "verified"}))
	mock.ExpectQuery("LIKE \\$1").
		WithArgs("SA%").
		WillReturnRows(sqlmock.NewRows([]string{"name", "verified"}).
			AddRow("SALEM", true).
			AddRow("SATTUR", true))

	reg := &PGRegistry{DB: db}
	m, ok, err := reg.Lookup(context.Background(), "SATHUR")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok || m.Name != "SATTUR" || m.Source != SourceFuzzy {
		t.Fatalf("unexpected match: %+v ok=%v", m, ok)
	}
	if m.Verified {
		t.Fatalf("fuzzy match below 0.9 should not be verified: %+v", m)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRegistryShortNameSkipsPrefixSearch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("FROM locations").
		WithArgs("OOT").
		WillReturnRows(sqlmock.NewRows([]string{"name", "verified"}))

	_, ok, err := (&PGRegistry{DB: db}).Lookup(context.Background(), "OOT")
	if err != nil || ok {
		t.Fatalf("expected no match, got ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRegistryUpsertNormalizesAliases(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("INSERT INTO locations").
		WithArgs("TRICHY", "TIRUCHI,TIRUCHIRAPPALLI", true).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := (&PGRegistry{DB: db}).Upsert(context.Background(), "Trichy", []string{" tiruchi ", "", "Tiruchirappalli"}, true); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
