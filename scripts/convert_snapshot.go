package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/complex-registry/app/models"
	"github.com/complex-registry/internal/parser"
)

// Legacy snapshot schema, as exported by the retired pipeline. Numbers
// arrive as text and coordinates as strings; everything optional.
type legacyComplex struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Address   string          `json:"address"`
	Latitude  *float64        `json:"lat,omitempty"`
	Longitude *float64        `json:"lng,omitempty"`
	BuiltYear string          `json:"built_year,omitempty"`
	Units     *int            `json:"units,omitempty"`
	Buildings *int            `json:"buildings,omitempty"`
	Listings  []legacyListing `json:"listings,omitempty"`
}

type legacyListing struct {
	ID       string `json:"id"`
	DealType string `json:"deal_type"`
	Price    string `json:"price"`
	Deposit  string `json:"deposit,omitempty"`
	Rent     string `json:"rent,omitempty"`
	Area     string `json:"area,omitempty"`
	Floor    string `json:"floor,omitempty"`
}

// Converts a legacy snapshot export into source records ready for the
// snapshot_raw staging collection. Usage:
//
//	go run scripts/convert_snapshot.go -in storage/legacy_snapshot.json -out storage/snapshot_records.json
func main() {
	in := flag.String("in", "storage/legacy_snapshot.json", "legacy snapshot export")
	out := flag.String("out", "storage/snapshot_records.json", "converted source records")
	flag.Parse()

	data, err := os.ReadFile(*in)
	if err != nil {
		log.Fatal("read snapshot: ", err)
	}

	var legacy []legacyComplex
	if err := json.Unmarshal(data, &legacy); err != nil {
		log.Fatal("decode snapshot: ", err)
	}
	fmt.Printf("loaded %d legacy complexes\n", len(legacy))

	var records []models.SourceRecord
	skipped := 0
	for _, lc := range legacy {
		if strings.TrimSpace(lc.ID) == "" {
			skipped++
			continue
		}
		records = append(records, convertComplex(lc)...)
	}

	encoded, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		log.Fatal("encode records: ", err)
	}
	if err := os.WriteFile(*out, encoded, 0644); err != nil {
		log.Fatal("write records: ", err)
	}

	fmt.Printf("wrote %d source records to %s (%d skipped, no id)\n", len(records), *out, skipped)
}

// convertComplex emits one record for the complex itself plus one per
// embedded listing, so each listing gets its own provenance entry.
func convertComplex(lc legacyComplex) []models.SourceRecord {
	base := models.SourceRecord{
		SourceType: models.SourceSnapshot,
		SourceID:   lc.ID,
		Name:       strings.TrimSpace(lc.Name),
		RawAddress: strings.TrimSpace(lc.Address),
		TotalUnits: lc.Units,
	}
	if lc.Buildings != nil {
		base.TotalBuildings = lc.Buildings
	}
	if lc.Latitude != nil && lc.Longitude != nil {
		base.Coordinates = &models.Coordinates{Latitude: *lc.Latitude, Longitude: *lc.Longitude}
	}
	if year := parser.ParseCompletionYear(lc.BuiltYear); year != nil {
		base.CompletionYear = year
	}

	records := []models.SourceRecord{base}
	for i, ll := range lc.Listings {
		rec := base
		data := convertListing(ll, i)
		rec.SourceID = lc.ID + ":listing:" + data.ListingID
		rec.Listing = data
		records = append(records, rec)
	}
	return records
}

func convertListing(ll legacyListing, i int) *models.ListingData {
	id := strings.TrimSpace(ll.ID)
	if id == "" {
		id = fmt.Sprintf("legacy-%d", i)
	}
	return &models.ListingData{
		ListingID:     id,
		DealType:      parser.ParseDealType(ll.DealType),
		Price:         parser.ParsePrice(ll.Price),
		Deposit:       parser.ParsePrice(ll.Deposit),
		MonthlyRent:   parser.ParsePrice(ll.Rent),
		ExclusiveArea: parser.ParseArea(ll.Area),
		Floor:         parser.ParseFloor(ll.Floor),
	}
}
