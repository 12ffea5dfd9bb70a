package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/Redpill-Linpro/hegemone-client/internal/config"
	"github.com/Redpill-Linpro/hegemone-client/internal/db"
	"github.com/Redpill-Linpro/hegemone-client/internal/logging"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/repository"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/types"
	"github.com/Redpill-Linpro/hegemone-client/internal/mqtt"
	"github.com/Redpill-Linpro/hegemone-client/tools/migrate"

	"github.com/joho/godotenv"
)

const usage = `usage: %s <command>
  migrate  apply pending schema migrations
  seed     insert synthetic readings (-device, -count, -interval)
  publish  send synthetic readings over MQTT like a sensor node (-device, -count, -interval)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg, "dev", "hegemone-tools")

	if os.Args[1] == "publish" {
		if err := publish(cfg, logger, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "publish: %v\n", err)
			os.Exit(1)
		}
		return
	}

	conn, err := db.Open(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "db open: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "err", closeErr)
		}
	}()

	switch os.Args[1] {
	case "migrate":
		n, err := migrate.Run(conn, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%d migrations applied\n", n)
	case "seed":
		device, count, interval := readingFlags("seed", os.Args[2:])

		if _, err := migrate.Run(conn, logger); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		repo := repository.NewRepository(conn)
		readings := syntheticReadings(*device, *count, *interval, time.Now().UTC())
		for _, t := range readings {
			if err := repo.InsertMeasurement(context.Background(), t); err != nil {
				fmt.Fprintf(os.Stderr, "seed: %v\n", err)
				os.Exit(1)
			}
		}
		fmt.Printf("%d readings inserted for %s\n", len(readings), *device)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func readingFlags(name string, args []string) (device *string, count *int, interval *time.Duration) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	device = fs.String("device", "demo-node", "device id")
	count = fs.Int("count", 144, "number of readings")
	interval = fs.Duration("interval", 10*time.Minute, "spacing between readings")
	_ = fs.Parse(args)
	return device, count, interval
}

func publish(cfg config.Config, logger *slog.Logger, args []string) error {
	device, count, interval := readingFlags("publish", args)

	pub := mqtt.NewPublisher(cfg, "hegemone-tools-"+*device, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pub.Connect(ctx); err != nil {
		return err
	}
	defer pub.Disconnect()

	readings := syntheticReadings(*device, *count, *interval, time.Now().UTC())
	for _, t := range readings {
		if err := pub.PublishTelemetry(t); err != nil {
			return err
		}
	}
	fmt.Printf("%d readings published to %s\n", len(readings), mqtt.TopicFor(cfg.MQTTTopic, *device))
	return nil
}

// syntheticReadings returns count readings ending at end, oldest first, with a
// daily temperature cycle. Soil lags and damps the ambient swing.
func syntheticReadings(device string, count int, interval time.Duration, end time.Time) []types.Telemetry {
	out := make([]types.Telemetry, 0, max(count, 0))
	for i := count - 1; i >= 0; i-- {
		ts := end.Add(-time.Duration(i) * interval)
		phase := 2 * math.Pi * float64(ts.Hour()*60+ts.Minute()) / (24 * 60)
		ambient := math.Round((18+6*math.Sin(phase-math.Pi/2))*10) / 10
		soil := math.Round((16+2.5*math.Sin(phase-math.Pi/2-0.6))*10) / 10
		moisture := 400 + (i*37)%200

		out = append(out, types.Telemetry{
			DeviceID:      device,
			DateTime:      &ts,
			SoilTemp:      &soil,
			AmbientTemp:   &ambient,
			MoistureLevel: &moisture,
		})
	}
	return out
}
