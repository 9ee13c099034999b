// Package env is a thin registry over process environment variables. Each
// call to Get documents the variable it reads; Lock then fails fast if any
// variable was read after the registry was locked, and HandleHelpFlag
// prints every documented variable and exits when -h/-help is passed,
// mirroring how the rest of the service's flags are self-documenting.
package env

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

type variable struct {
	name         string
	defaultValue string
	description  string
	value        string
}

var (
	mu        sync.Mutex
	variables []*variable
	locked    bool
)

// Get returns the value of the named environment variable, or defaultValue
// if it is unset. description is recorded for HandleHelpFlag / PrintHelp.
func Get(name, defaultValue, description string) string {
	mu.Lock()
	defer mu.Unlock()

	if locked {
		panic(fmt.Sprintf("env.Get(%q) called after env.Lock()", name))
	}

	value, ok := os.LookupEnv(name)
	if !ok {
		value = defaultValue
	}

	variables = append(variables, &variable{
		name:         name,
		defaultValue: defaultValue,
		description:  description,
		value:        value,
	})

	return value
}

// Lock prevents further calls to Get, so that every environment variable
// this process consults is known by the time PrintHelp or HandleHelpFlag
// is invoked.
func Lock() {
	mu.Lock()
	defer mu.Unlock()
	locked = true
}

// HandleHelpFlag prints documentation for every registered environment
// variable and exits the process if any of the command's arguments is
// "-h" or "-help".
func HandleHelpFlag() {
	for _, arg := range os.Args[1:] {
		if arg == "-h" || arg == "-help" || arg == "--help" {
			PrintHelp()
			os.Exit(0)
		}
	}
}

// PrintHelp writes documentation for every registered environment variable
// to stderr.
func PrintHelp() {
	mu.Lock()
	defer mu.Unlock()

	sorted := append([]*variable{}, variables...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })

	fmt.Fprintln(os.Stderr, "Environment variables:")
	for _, v := range sorted {
		fmt.Fprintf(os.Stderr, "  %s (default: %q)\n", v.name, v.defaultValue)
		if v.description != "" {
			fmt.Fprintf(os.Stderr, "        %s\n", v.description)
		}
	}
}

// InsecureDev indicates the process is running in an insecure local
// development mode (INSECURE_DEV=true). The only effect in this module is
// that the HTTP server listens on 127.0.0.1 instead of all interfaces.
var InsecureDev = Get("INSECURE_DEV", "false", "Running in insecure dev mode") == strings.ToLower("true")
