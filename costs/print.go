package costs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// PrintSummary writes a formatted cost report to stdout.
func (l *Ledger) PrintSummary() {
	s := l.Summary()

	rule := strings.Repeat("=", 60)
	fmt.Println()
	fmt.Println(rule)
	color.New(color.Bold).Println("API COST SUMMARY")
	fmt.Println(rule)
	color.Green("Total Cost: $%.4f", s.TotalCost)
	fmt.Printf("Total Calls: %d\n", s.TotalCalls)

	fmt.Println("\nBy Service:")
	for _, svc := range sortedKeys(s.ByService) {
		b := s.ByService[svc]
		fmt.Printf("  %s: $%.4f (%d calls)\n", svc, b.Cost, b.Calls)
	}

	fmt.Println("\nBy Model:")
	models := make([]string, 0, len(s.ByModel))
	for m := range s.ByModel {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		b := s.ByModel[m]
		if b.Tokens > 0 {
			fmt.Printf("  %s: $%.4f (%d calls, %d tokens)\n", m, b.Cost, b.Calls, b.Tokens)
		} else {
			fmt.Printf("  %s: $%.4f (%d calls)\n", m, b.Cost, b.Calls)
		}
	}

	if len(s.ByJob) > 0 {
		fmt.Println("\nBy Job:")
		for _, job := range sortedKeys(s.ByJob) {
			b := s.ByJob[job]
			fmt.Printf("  %s: $%.4f (%d calls)\n", job, b.Cost, b.Calls)
		}
	}
	fmt.Println(rule)
}

func sortedKeys(m map[string]Bucket) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
