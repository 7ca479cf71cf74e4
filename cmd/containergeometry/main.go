package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/chrissnell/containergeometry/internal/app"
	"github.com/chrissnell/containergeometry/internal/log"
	"github.com/chrissnell/containergeometry/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	input := flag.String("input", "", "CSV file with height and cumulative volume columns")
	cfgFile := flag.String("config", "", "Path to configuration source:\n\t\t\t  YAML: containergeometry.yaml\n\t\t\t  SQLite: containergeometry.db\n\t\t\t  Defaults are used when empty")
	cfgBackend := flag.String("config-backend", "yaml", "Configuration backend type: 'yaml' for YAML files, 'sqlite' for SQLite databases")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	dbPath := flag.String("db", "", "SQLite database for storing analysis runs (overrides storage config)")
	plotDir := flag.String("plot-dir", "", "Directory to write diagnostic charts to")
	plotFormat := flag.String("plot-format", "png", "Chart image format: png, svg or pdf")
	serve := flag.Bool("serve", false, "Run the REST server")
	listen := flag.String("listen", "", "REST server listen address (overrides server config)")
	port := flag.Int("port", 0, "REST server port (overrides server config)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("containergeometry %s\n", version)
		os.Exit(0)
	}

	if *input == "" && !*serve {
		fmt.Fprintln(os.Stderr, "either -input or -serve is required")
		flag.Usage()
		os.Exit(2)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Load configuration
	cfgData, err := loadConfig(*cfgFile, *cfgBackend)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	opts := app.Options{
		Input:      *input,
		DBPath:     *dbPath,
		PlotDir:    *plotDir,
		PlotFormat: *plotFormat,
		Serve:      *serve,
		ListenAddr: *listen,
		Port:       *port,
	}

	// Create and run the application
	application := app.New(cfgData, opts, log.GetSugaredLogger())
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		log.Sync()
		os.Exit(1)
	}
}

func loadConfig(cfgFile, cfgBackend string) (*config.ConfigData, error) {
	if cfgFile == "" {
		return &config.ConfigData{}, nil
	}
	filename, _ := filepath.Abs(cfgFile)

	var provider config.ConfigProvider
	var err error

	switch cfgBackend {
	case "yaml":
		provider = config.NewYAMLProvider(filename)
	case "sqlite":
		provider, err = config.NewSQLiteProvider(filename)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", cfgBackend)
	}
	defer provider.Close()

	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the -config flag? Run with -h for help: %w", err)
	}
	if err := cfgData.Analysis.Validate(); err != nil {
		return nil, err
	}

	return cfgData, nil
}
