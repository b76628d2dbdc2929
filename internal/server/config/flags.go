package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/weavesync/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string     HTTP bind address (e.g. "127.0.0.1:8080")
//	-d string     data directory for user stores
//	-x string     URL prefix, e.g. "/weave"
//	-r bool       enable account registration
//	-q int        quota in KB reported by info/quota (0 = none)
//	-t int        shutdown timeout, seconds
//	-register     "user[:password]": create a store and exit
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-a", "-d", "-x", "-q", "-t", "-register"},
		[]string{"-r"},
	)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DataDir, "d", config.DataDir, "data directory to store user profiles")
	fs.StringVar(&config.Prefix, "x", config.Prefix, "URL prefix, e.g. for reverse proxies")
	fs.BoolVar(&config.EnableRegistration, "r", config.EnableRegistration, "allow account registration")
	fs.Int64Var(&config.QuotaKB, "q", config.QuotaKB, "quota in KB reported to clients (0 = none)")
	shutdownTimeout := fs.Int("t", int(config.ShutdownTimeout.Seconds()), "shutdown timeout (in seconds)")
	fs.StringVar(&config.Register, "register", config.Register, "user:password credentials to register")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ShutdownTimeout = time.Duration(*shutdownTimeout) * time.Second
}
