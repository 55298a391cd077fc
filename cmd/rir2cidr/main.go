// package main ...
package main

// import ...
import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"paepcke.de/rir2cidr"
	"paepcke.de/rir2cidr/logger"
)

// const shortcuts
const (
	_APPNAME = "RIR2CIDR"

	// ENV VAR NAMES
	_ENV_CONFIG      = _APPNAME + "_CONFIG"
	_ENV_LOG_LEVEL   = _APPNAME + "_LOG_LEVEL"
	_ENV_LOG_CONSOLE = _APPNAME + "_LOG_CONSOLE"
)

// main ..
func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code
func run(args []string) int {
	// .env is optional
	_ = godotenv.Load()

	fs := flag.NewFlagSet("rir2cidr", flag.ContinueOnError)
	fs.Usage = func() { syntax(fs) }
	var (
		country  = fs.String("c", "", "country code(s), comma separated, e.g. RU or DE,AT,CH")
		list     = fs.String("l", "", "file with one country code per line")
		output   = fs.String("o", "", "output file, .zst suffix compresses")
		format   = fs.String("format", "", "output format [plain|pf]")
		store    = fs.String("store", "", "source cache directory")
		offline  = fs.Bool("offline", false, "use cached or local sources only")
		force    = fs.Bool("force", false, "refetch all sources")
		serve    = fs.String("serve", "", "serve lists on this address, e.g. :8080")
		config   = fs.String("config", "", "yaml config file")
		textfile = fs.String("textfile", "", "write prometheus metrics textfile")
		verbose  = fs.Bool("v", false, "debug logging")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	// logger
	level, _ := syscall.Getenv(_ENV_LOG_LEVEL)
	if *verbose {
		level = "debug"
	}
	console := false
	if env, ok := syscall.Getenv(_ENV_LOG_CONSOLE); ok {
		console, _ = strconv.ParseBool(env)
	}
	log := logger.Build(logger.Config{Level: level, Console: console}, os.Stderr)

	// config file, env, flags
	cfg := rir2cidr.Config{}
	path := *config
	if path == "" {
		path, _ = syscall.Getenv(_ENV_CONFIG)
	}
	if path != "" {
		var err error
		if cfg, err = rir2cidr.LoadConfig(path); err != nil {
			log.Error().Err(err).Msg("[rir2cidr] config")
			return 2
		}
	}
	if err := cfg.ApplyEnv(syscall.Getenv); err != nil {
		log.Error().Err(err).Msg("[rir2cidr] config")
		return 2
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "c":
			cfg.Countries, cfg.CountryFile = splitCodes(*country), ""
		case "l":
			cfg.CountryFile, cfg.Countries = *list, nil
		case "o":
			cfg.Outfile = *output
		case "format":
			cfg.Format = *format
		case "store":
			cfg.Store = *store
		case "offline":
			cfg.Offline = *offline
		case "force":
			cfg.Force = *force
		case "serve":
			cfg.Serve = *serve
		case "textfile":
			cfg.Textfile = *textfile
		}
	})
	if isSet(fs, "c") && isSet(fs, "l") {
		log.Error().Msg("[rir2cidr] [config] -c and -l are mutually exclusive")
		return 2
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("[rir2cidr] invalid configuration")
		syntax(fs)
		return 2
	}
	cfg.Log = &log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Serve != "" {
		if err := rir2cidr.Serve(ctx, cfg); err != nil {
			log.Error().Err(err).Msg("[rir2cidr] serve")
			return 1
		}
		return 0
	}
	if _, err := rir2cidr.Generate(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("[rir2cidr] run failed")
		return 1
	}
	return 0
}

// splitCodes ...
func splitCodes(in string) []string {
	var codes []string
	for _, c := range strings.Split(in, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}

// isSet ...
func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// syntax ...
func syntax(fs *flag.FlagSet) {
	out("syntax : rir2cidr [-c CC[,CC...] | -l countries.txt] -o outfile [options]")
	out("example: rir2cidr -c RU -o ru.cidr")
	out("example: rir2cidr -l eu.txt -o /etc/pf.eu-tables -format pf")
	out("")
	fs.SetOutput(os.Stdout)
	fs.PrintDefaults()
	out("")
	out("env vars")
	out("NO_[IPV4|IPV6]")
	out("RIR2CIDR_[OUTFILE|STORE|MAXAGE|FORMAT|TEXTFILE|CONFIG]")
	out("RIR2CIDR_LOG_[LEVEL|CONSOLE]")
	out("HTTPS_PROXY, SSL_CERT_[FILE|DIR]")
	out(".env in the working directory is loaded first")
}

//
// LITTLE GENERIC HELPER SECTION
//

// out ...
func out(msg string) {
	os.Stdout.Write([]byte(msg + "\n"))
}
