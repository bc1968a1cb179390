package config

import "fmt"

// IsProduction returns true if environment names a production deployment
func IsProduction(environment string) bool {
	return environment == "production" || environment == "prod"
}

// IsDevelopment returns true if environment names a local deployment
func IsDevelopment(environment string) bool {
	return environment == "" || environment == "development" || environment == "dev"
}

// ListenAddress returns the formatted listen address for a port
func ListenAddress(port int) string {
	return fmt.Sprintf(":%d", port)
}
