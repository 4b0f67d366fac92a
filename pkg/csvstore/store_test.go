package csvstore

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stratadb/strata/pkg/partition"
	"github.com/stratadb/strata/pkg/schema"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/types"
)

func seedTemplate() schema.Template {
	return schema.Template{Fields: []schema.TemplateField{
		{Name: "timestamp", Kind: types.KindDate, Index: true},
		{Name: "value", Kind: types.KindString},
	}}
}

func day(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02T15:04:05Z07:00", value)
	if err != nil {
		ts, err = time.Parse("2006-01-02", value)
		if err != nil {
			t.Fatalf("parse %q: %v", value, err)
		}
	}
	return ts.UTC()
}

func seedEntry(t *testing.T, ts string) types.Entry {
	return types.Entry{"timestamp": day(t, ts), "value": ts[:10]}
}

func newSeedStore(t *testing.T) (*Store, *storage.Local) {
	t.Helper()
	adapter, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	s := New(adapter, partition.NewYearMonth(), WithTemplate(seedTemplate()))
	return s, adapter
}

func TestSingleWriteFileContents(t *testing.T) {
	s, adapter := newSeedStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, seedEntry(t, "2000-01-01")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	listing, err := adapter.Collection(ctx, storage.AnyExtension)
	if err != nil {
		t.Fatalf("Collection failed: %v", err)
	}
	want := []string{"2000-01.csv", "schema.json"}
	if !reflect.DeepEqual(listing, want) {
		t.Errorf("listing = %v, want %v", listing, want)
	}

	data, err := adapter.Read(ctx, "2000-01.csv")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	wantBytes := "timestamp,value\n946684800,2000-01-01\n"
	if string(data) != wantBytes {
		t.Errorf("file = %q, want %q", data, wantBytes)
	}

	got, err := s.Get(ctx, day(t, "2000-01-01"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(got, seedEntry(t, "2000-01-01")) {
		t.Errorf("Get = %v, want %v", got, seedEntry(t, "2000-01-01"))
	}
}

func TestSchemaFileContents(t *testing.T) {
	s, adapter := newSeedStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, seedEntry(t, "2000-01-01")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	data, err := adapter.Read(ctx, "schema.json")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	want := `{"timestamp":"*Date","value":"String"}`
	if string(data) != want {
		t.Errorf("schema.json = %s, want %s", data, want)
	}
}

func TestMultiPartitionWrite(t *testing.T) {
	s, adapter := newSeedStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, seedEntry(t, "2000-01-01")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	err := s.Put(ctx,
		seedEntry(t, "2000-01-02"),
		seedEntry(t, "2000-01-03"),
		seedEntry(t, "2000-02-01"),
	)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	jan, err := adapter.Read(ctx, "2000-01.csv")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	wantJan := "timestamp,value\n946684800,2000-01-01\n946771200,2000-01-02\n946857600,2000-01-03\n"
	if string(jan) != wantJan {
		t.Errorf("2000-01.csv = %q, want %q", jan, wantJan)
	}

	feb, err := adapter.Read(ctx, "2000-02.csv")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	wantFeb := "timestamp,value\n949363200,2000-02-01\n"
	if string(feb) != wantFeb {
		t.Errorf("2000-02.csv = %q, want %q", feb, wantFeb)
	}
}

func TestAppendFastPathKeepsPrefix(t *testing.T) {
	s, adapter := newSeedStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, seedEntry(t, "2000-01-01"), seedEntry(t, "2000-01-02")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	before, _ := adapter.Read(ctx, "2000-01.csv")

	if err := s.Put(ctx, seedEntry(t, "2000-01-03"), seedEntry(t, "2000-01-04")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	after, _ := adapter.Read(ctx, "2000-01.csv")

	if len(after) <= len(before) || string(after[:len(before)]) != string(before) {
		t.Errorf("append must leave the prior prefix unchanged\nbefore: %q\nafter:  %q", before, after)
	}
}

func TestOutOfOrderForcesRewrite(t *testing.T) {
	s, adapter := newSeedStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, seedEntry(t, "2000-01-01"), seedEntry(t, "2000-01-02")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	mid := types.Entry{"timestamp": day(t, "2000-01-01T12:00:00Z"), "value": "noon"}
	if err := s.Put(ctx, mid); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	data, _ := adapter.Read(ctx, "2000-01.csv")
	want := "timestamp,value\n946684800,2000-01-01\n946728000,noon\n946771200,2000-01-02\n"
	if string(data) != want {
		t.Errorf("2000-01.csv = %q, want %q", data, want)
	}
}

func TestEarlierThanFirstForcesRewrite(t *testing.T) {
	s, adapter := newSeedStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, seedEntry(t, "2000-01-02")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, seedEntry(t, "2000-01-01")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	data, _ := adapter.Read(ctx, "2000-01.csv")
	want := "timestamp,value\n946684800,2000-01-01\n946771200,2000-01-02\n"
	if string(data) != want {
		t.Errorf("2000-01.csv = %q, want %q", data, want)
	}
}

func TestDuplicateKeyLaterWins(t *testing.T) {
	s, _ := newSeedStore(t)
	ctx := context.Background()

	first := types.Entry{"timestamp": day(t, "2000-01-01"), "value": "first"}
	second := types.Entry{"timestamp": day(t, "2000-01-01"), "value": "second"}
	if err := s.Put(ctx, first); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(ctx, day(t, "2000-01-01"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got["value"] != "second" {
		t.Errorf("value = %v, want second (later occurrence wins on merge)", got["value"])
	}
}

func TestGetMissing(t *testing.T) {
	s, _ := newSeedStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, seedEntry(t, "2000-01-01")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := s.Get(ctx, day(t, "2000-01-02"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("Get of an absent key = %v, want nil", got)
	}
	// A key mapping to a partition that was never written.
	got, err = s.Get(ctx, day(t, "2031-05-01"))
	if err != nil || got != nil {
		t.Errorf("Get of an absent partition = %v, %v, want nil", got, err)
	}
}

func TestEmptyStoreAnswers(t *testing.T) {
	s, _ := newSeedStore(t)
	ctx := context.Background()

	if e, err := s.First(ctx); err != nil || e != nil {
		t.Errorf("First = %v, %v, want nil", e, err)
	}
	if e, err := s.Last(ctx); err != nil || e != nil {
		t.Errorf("Last = %v, %v, want nil", e, err)
	}
	if k, err := s.FirstKey(ctx); err != nil || k != nil {
		t.Errorf("FirstKey = %v, %v, want nil", k, err)
	}
	if k, err := s.LastKey(ctx); err != nil || k != nil {
		t.Errorf("LastKey = %v, %v, want nil", k, err)
	}
	if e, err := s.Get(ctx, day(t, "2000-01-01")); err != nil || e != nil {
		t.Errorf("Get = %v, %v, want nil", e, err)
	}
}

func TestEmptyPutIsNoOp(t *testing.T) {
	s, adapter := newSeedStore(t)
	ctx := context.Background()

	if err := s.Put(ctx); err != nil {
		t.Fatalf("Put of nothing failed: %v", err)
	}
	listing, _ := adapter.Collection(ctx, storage.AnyExtension)
	if len(listing) != 0 {
		t.Errorf("empty put should write nothing, got %v", listing)
	}
}

func TestFields(t *testing.T) {
	s, _ := newSeedStore(t)
	fields, err := s.Fields(context.Background())
	if err != nil {
		t.Fatalf("Fields failed: %v", err)
	}
	if !reflect.DeepEqual(fields, []string{"timestamp", "value"}) {
		t.Errorf("Fields = %v", fields)
	}
}

func TestValidationRejectsBadEntry(t *testing.T) {
	s, _ := newSeedStore(t)
	err := s.Put(context.Background(), types.Entry{"timestamp": day(t, "2000-01-01"), "value": 3.0})
	if !types.IsValidation(err) {
		t.Errorf("got %v, want Validation", err)
	}
}

func TestMissingSchema(t *testing.T) {
	adapter, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	s := New(adapter, partition.NewYearMonth())

	if _, err := s.First(context.Background()); !types.IsMissingSchema(err) {
		t.Errorf("got %v, want MissingSchema", err)
	}
	if err := s.Put(context.Background(), types.Entry{"timestamp": time.Now()}); !types.IsMissingSchema(err) {
		t.Errorf("got %v, want MissingSchema", err)
	}
}

func TestSchemaPersistenceAcrossStores(t *testing.T) {
	dir := t.TempDir()
	adapter, err := storage.NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	ctx := context.Background()

	first := New(adapter, partition.NewYearMonth(), WithTemplate(seedTemplate()))
	if err := first.Put(ctx, seedEntry(t, "2000-01-01")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// No template: the persisted schema drives the store.
	second := New(adapter, partition.NewYearMonth())
	fields, err := second.Fields(ctx)
	if err != nil {
		t.Fatalf("Fields failed: %v", err)
	}
	if !reflect.DeepEqual(fields, []string{"timestamp", "value"}) {
		t.Errorf("Fields = %v", fields)
	}

	// A matching template succeeds.
	third := New(adapter, partition.NewYearMonth(), WithTemplate(seedTemplate()))
	if _, err := third.Fields(ctx); err != nil {
		t.Errorf("matching template should resolve: %v", err)
	}
}

func TestSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	adapter, err := storage.NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	ctx := context.Background()

	first := New(adapter, partition.NewYearMonth(), WithTemplate(seedTemplate()))
	if err := first.Put(ctx, seedEntry(t, "2000-01-01")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	wider := seedTemplate()
	wider.Fields = append(wider.Fields, schema.TemplateField{Name: "additional", Kind: types.KindString})
	mismatched := New(adapter, partition.NewYearMonth(), WithTemplate(wider))

	_, err = mismatched.Fields(ctx)
	if !types.IsSchemaMismatched(err) {
		t.Errorf("got %v, want SchemaMismatched", err)
	}
}

func TestConcurrentPutsSamePartition(t *testing.T) {
	s, _ := newSeedStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := types.Entry{
				"timestamp": day(t, "2000-01-01").Add(time.Duration(i) * time.Hour),
				"value":     "v",
			}
			if err := s.Put(ctx, e); err != nil {
				t.Errorf("Put failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		key := day(t, "2000-01-01").Add(time.Duration(i) * time.Hour)
		got, err := s.Get(ctx, key)
		if err != nil || got == nil {
			t.Errorf("Get(%v) = %v, %v", key, got, err)
		}
	}
}
