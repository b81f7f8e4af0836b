package main

import "testing"

type fakePlacer struct {
	placements []Placement
}

func (f fakePlacer) PlacementsFor(queryID uint64) ([]Placement, error) {
	return f.placements, nil
}

type fakeCatalog struct {
	entries map[string]CatalogEntry
}

func (f fakeCatalog) Lookup(name string) (CatalogEntry, bool) {
	e, ok := f.entries[name]
	return e, ok
}

func TestFakePlacerSatisfiesPlacer(t *testing.T) {
	var _ Placer = fakePlacer{}

	p := fakePlacer{placements: []Placement{{OperatorID: 1, SubplanID: 2, WorkerLoc: "worker-a", PredecessorN: 1}}}
	got, err := p.PlacementsFor(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].WorkerLoc != "worker-a" {
		t.Fatalf("unexpected placements: %+v", got)
	}
}

func TestFakeCatalogSatisfiesCatalog(t *testing.T) {
	var _ Catalog = fakeCatalog{}

	c := fakeCatalog{entries: map[string]CatalogEntry{
		"readings": {Name: "readings", SchemaJSON: []byte(`{}`)},
	}}
	entry, ok := c.Lookup("readings")
	if !ok || entry.Name != "readings" {
		t.Fatalf("unexpected lookup result: %+v ok=%v", entry, ok)
	}
	if _, ok := c.Lookup("missing"); ok {
		t.Fatalf("expected missing lookup to report not-found")
	}
}
