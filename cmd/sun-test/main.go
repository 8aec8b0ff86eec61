package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"luascript-server/internal/suncalc"
)

func main() {
	lat := flag.Float64("lat", 59.3293, "Latitude")
	lon := flag.Float64("lon", 18.0686, "Longitude")
	date := flag.String("date", "", "Date (YYYY-MM-DD), defaults to today")
	flag.Parse()

	now := time.Now().UTC()
	if *date != "" {
		parsed, err := time.Parse("2006-01-02", *date)
		if err != nil {
			log.Fatalf("Invalid date %q: %v", *date, err)
		}
		now = parsed
	}

	calc := suncalc.New()

	fmt.Printf("Location: %.4f, %.4f\n", *lat, *lon)
	fmt.Printf("Date:     %s (UTC)\n\n", now.Format("2006-01-02"))

	rs := calc.Riseset(now.Unix(), *lat, *lon)
	printRiseSet("Today", rs)

	next := calc.NextRiseSet(now.Unix(), *lat, *lon)
	printRiseSet("Next", next)
}

func printRiseSet(label string, rs suncalc.RiseSet) {
	fmt.Printf("%s:\n", label)
	if rs.Sunrise == 0 {
		fmt.Println("  Sunrise: none (polar day or night)")
	} else {
		fmt.Printf("  Sunrise: %s\n", time.Unix(rs.Sunrise, 0).UTC().Format(time.RFC3339))
	}
	if rs.Sunset == 0 {
		fmt.Println("  Sunset:  none (polar day or night)")
	} else {
		fmt.Printf("  Sunset:  %s\n", time.Unix(rs.Sunset, 0).UTC().Format(time.RFC3339))
	}
	fmt.Println()
}
