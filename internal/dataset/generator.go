// Package dataset generates a superstore-shaped sales dataset and writes
// it as parquet, for seeding development and test stores.
package dataset

import (
	"fmt"
	"math/rand"
	"time"
)

// Record is one order line of the generated dataset. The field set mirrors
// the columns the schema profile classifies.
type Record struct {
	OrderID     string  `parquet:"order_id"`
	OrderDate   string  `parquet:"order_date"`
	Region      string  `parquet:"region"`
	State       string  `parquet:"state"`
	City        string  `parquet:"city"`
	Segment     string  `parquet:"segment"`
	Category    string  `parquet:"category"`
	SubCategory string  `parquet:"sub_category"`
	ProductName string  `parquet:"product_name"`
	Sales       float64 `parquet:"sales"`
	Profit      float64 `parquet:"profit"`
	Quantity    int32   `parquet:"quantity"`
	Discount    float64 `parquet:"discount"`
}

var regions = []string{"North", "South", "East", "West", "Central"}

var statesByRegion = map[string][]string{
	"North":   {"New York", "Michigan", "Minnesota"},
	"South":   {"Texas", "Florida", "Georgia"},
	"East":    {"Pennsylvania", "Ohio", "Virginia"},
	"West":    {"California", "Washington", "Arizona"},
	"Central": {"Illinois", "Missouri", "Kansas"},
}

var citiesByState = map[string][]string{
	"New York":     {"New York City", "Buffalo"},
	"Michigan":     {"Detroit", "Grand Rapids"},
	"Minnesota":    {"Minneapolis", "Saint Paul"},
	"Texas":        {"Houston", "Dallas"},
	"Florida":      {"Miami", "Orlando"},
	"Georgia":      {"Atlanta", "Savannah"},
	"Pennsylvania": {"Philadelphia", "Pittsburgh"},
	"Ohio":         {"Columbus", "Cleveland"},
	"Virginia":     {"Richmond", "Norfolk"},
	"California":   {"Los Angeles", "San Francisco"},
	"Washington":   {"Seattle", "Spokane"},
	"Arizona":      {"Phoenix", "Tucson"},
	"Illinois":     {"Chicago", "Springfield"},
	"Missouri":     {"Kansas City", "St. Louis"},
	"Kansas":       {"Wichita", "Topeka"},
}

var segments = []string{"Consumer", "Corporate", "Home Office"}

var subCategoriesByCategory = map[string][]string{
	"Furniture":       {"Chairs", "Tables", "Bookcases", "Furnishings"},
	"Office Supplies": {"Binders", "Paper", "Storage", "Appliances", "Labels"},
	"Technology":      {"Phones", "Accessories", "Machines", "Copiers"},
}

var categories = []string{"Furniture", "Office Supplies", "Technology"}

var productAdjectives = []string{"Premium", "Standard", "Compact", "Deluxe", "Economy", "Ergonomic"}

// Generator produces deterministic records for a given seed.
type Generator struct {
	rnd      *rand.Rand
	start    time.Time
	months   int
	sequence int64
}

// NewGenerator spreads orders uniformly over the given number of months
// ending at start's month.
func NewGenerator(seed int64, start time.Time, months int) *Generator {
	if months <= 0 {
		months = 24
	}
	return &Generator{
		rnd:    rand.New(rand.NewSource(seed)),
		start:  start.UTC(),
		months: months,
	}
}

func (g *Generator) Next() Record {
	g.sequence++

	region := pickOne(g.rnd, regions)
	state := pickOne(g.rnd, statesByRegion[region])
	city := pickOne(g.rnd, citiesByState[state])
	category := pickOne(g.rnd, categories)
	subCategory := pickOne(g.rnd, subCategoriesByCategory[category])

	monthsBack := g.rnd.Intn(g.months)
	day := g.rnd.Intn(28) + 1
	orderDate := g.start.AddDate(0, -monthsBack, 0)
	orderDate = time.Date(orderDate.Year(), orderDate.Month(), day, 0, 0, 0, 0, time.UTC)

	quantity := int32(g.rnd.Intn(9) + 1)
	unitPrice := 5 + g.rnd.Float64()*495
	sales := round2(unitPrice * float64(quantity))
	discount := float64(g.rnd.Intn(5)) * 0.05
	margin := 0.05 + g.rnd.Float64()*0.35
	profit := round2(sales * (margin - discount))

	return Record{
		OrderID:     fmt.Sprintf("ORD-%06d", g.sequence),
		OrderDate:   orderDate.Format("2006-01-02"),
		Region:      region,
		State:       state,
		City:        city,
		Segment:     pickOne(g.rnd, segments),
		Category:    category,
		SubCategory: subCategory,
		ProductName: fmt.Sprintf("%s %s", pickOne(g.rnd, productAdjectives), subCategory),
		Sales:       sales,
		Profit:      profit,
		Quantity:    quantity,
		Discount:    discount,
	}
}

// Generate returns count records.
func (g *Generator) Generate(count int) []Record {
	records := make([]Record, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, g.Next())
	}
	return records
}

func pickOne(rnd *rand.Rand, options []string) string {
	return options[rnd.Intn(len(options))]
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
