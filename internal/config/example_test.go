package config_test

import (
	"fmt"
	"log"

	"github.com/rkm/s2-parcels/internal/config"
)

func ExampleLoad() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	// Access configuration values
	fmt.Printf("Server: %s\n", cfg.Server.Address())
	fmt.Printf("Catalogue: %s\n", cfg.Catalogue.Type)
	fmt.Printf("Ledger: %s\n", cfg.Ledger.Path)
	fmt.Printf("Process threshold: %g\n", cfg.Select.ProcessThreshold)

	// Output:
	// Server: 0.0.0.0:8080
	// Catalogue: odata
	// Ledger: products.csv
	// Process threshold: 0.97
}
