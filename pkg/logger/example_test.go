package logger_test

import (
	"fmt"
	"os"

	"github.com/jordan-tan/vizier/pkg/logger"
)

func ExampleNew() {
	// DEBUG is read once at package initialisation, so setting it here does
	// not enable loggers created afterwards
	os.Setenv("DEBUG", "app:*")
	defer os.Unsetenv("DEBUG")

	// Create a logger for a specific namespace
	log := logger.New("app:feature")

	// Check if logger is enabled
	if log.Enabled() {
		fmt.Println("Logger is enabled")
	}

	// Output:
}

func ExampleLogger_Printf() {
	// Has no effect on loggers: DEBUG is read once at package initialisation
	os.Setenv("DEBUG", "*")
	defer os.Unsetenv("DEBUG")

	log := logger.New("app:feature")
	
	// Printf uses standard fmt.Printf formatting
	log.Printf("Processing %d items", 42)
	
	// With DEBUG=* set before the program starts, this writes to stderr:
	// "app:feature Processing 42 items +<time since the previous line>"
}

func ExampleLogger_LazyPrintf() {
	os.Setenv("DEBUG", "app:*")
	defer os.Unsetenv("DEBUG")

	log := logger.New("app:expensive")
	
	// The lazy function is only called if the logger is enabled
	log.LazyPrintf(func() string {
		// This expensive operation only runs when logging is enabled
		result := "computed result"
		return fmt.Sprintf("Expensive computation: %s", result)
	})
	
	// With DEBUG=app:* set before the program starts, this writes to stderr:
	// "app:expensive Expensive computation: computed result +<time since the previous line>"
}

func ExampleNew_patterns() {
	// Example patterns for DEBUG environment variable
	
	// Enable all loggers
	os.Setenv("DEBUG", "*")
	
	// Enable all loggers in workflow namespace
	os.Setenv("DEBUG", "workflow:*")
	
	// Enable multiple namespaces
	os.Setenv("DEBUG", "workflow:*,cli:*")
	
	// Enable all except specific patterns
	os.Setenv("DEBUG", "*,-workflow:test")
	
	// Enable namespace but exclude specific loggers
	os.Setenv("DEBUG", "workflow:*,-workflow:cache")
	
	defer os.Unsetenv("DEBUG")
}
