package main

import (
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rbroggi/slotcast/internal/config"
	log "github.com/sirupsen/logrus"
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
}

var (
	envFile  = flag.String("env-file", "", "optional dotenv file loaded before reading the environment")
	attempts = flag.Int("attempts", 20, "number of dial attempts per target")
	interval = flag.Duration("interval", time.Second, "delay between two dial attempts")
	timeout  = flag.Duration("timeout", 10*time.Second, "timeout of a single dial attempt")
)

// targets lists the TCP endpoints the server depends on: the configured storage and, when
// running against the emulator, pubsub. Positional host:port arguments replace the defaults.
func targets(cfg *config.Config, args []string, emulatorHost string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}

	var out []string
	switch cfg.StorageDriver {
	case config.StorageMongo:
		hosts, err := urlHosts(cfg.MongoURL, "27017")
		if err != nil {
			return nil, fmt.Errorf("invalid MONGODB_URL: %w", err)
		}
		out = append(out, hosts...)
	case config.StoragePostgres:
		hosts, err := urlHosts(cfg.PostgresURL, "5432")
		if err != nil {
			return nil, fmt.Errorf("invalid POSTGRESQL_URL: %w", err)
		}
		out = append(out, hosts...)
	}
	if emulatorHost != "" {
		out = append(out, emulatorHost)
	}
	return out, nil
}

// urlHosts extracts the host:port pairs of a connection url. Mongo urls may list several
// comma separated hosts.
func urlHosts(raw, defaultPort string) ([]string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, fmt.Errorf("no host in [%s]", u.Redacted())
	}
	var hosts []string
	for _, h := range strings.Split(u.Host, ",") {
		if _, _, err := net.SplitHostPort(h); err != nil {
			h = net.JoinHostPort(h, defaultPort)
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

func waitFor(address string) error {
	for i := 1; i <= *attempts; i++ {
		conn, err := net.DialTimeout("tcp", address, *timeout)
		if err == nil {
			conn.Close()
			log.WithField("address", address).Info("TCP connection available")
			return nil
		}
		log.WithError(err).WithField("address", address).WithField("attempt", i).Debug("TCP connection not available yet")
		time.Sleep(*interval)
	}
	return fmt.Errorf("TCP connection on [%s] not available after %d attempts", address, *attempts)
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.WithError(err).Fatal("error loading configuration")
	}

	addresses, err := targets(cfg, flag.Args(), os.Getenv("PUBSUB_EMULATOR_HOST"))
	if err != nil {
		log.WithError(err).Fatal("unable to resolve targets")
	}

	for _, address := range addresses {
		if err := waitFor(address); err != nil {
			log.WithError(err).Fatal("dependency unavailable")
		}
	}
}
