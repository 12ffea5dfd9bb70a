package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	SQLiteDriver          string
	SQLiteDSN             string
	SQLitePath            string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration

	// MeasurementsURL is the endpoint the graph component fetches its records from.
	// Defaults to this server's own /api/v1/measurements.
	MeasurementsURL string
	FetchTimeout    time.Duration
	ChartTitle      string

	// Each page view gets its own graph; views not polled within GraphViewTTL are dropped.
	GraphViewTTL  time.Duration
	GraphMaxViews int

	MQTTEnabled        bool
	MQTTBroker         string
	MQTTPort           int
	MQTTClientID       string
	MQTTTopic          string
	MQTTEmbeddedBroker bool
	MQTTEmbeddedAddr   string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	ForwardURL        string
	ForwardMaxRetries int
	ForwardQueueSize  int

	CORSAllowedOrigins []string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	httpAddr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	driver := strings.TrimSpace(os.Getenv("DB_DRIVER"))
	if driver == "" {
		driver = "sqlite3"
	}
	switch driver {
	case "sqlite3", "sqlite3-log":
	default:
		return Config{}, fmt.Errorf("invalid DB_DRIVER %q (allowed: sqlite3, sqlite3-log)", driver)
	}
	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	path := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if path == "" {
		path = "./data/hegemone.db"
	}

	maxOpenConns, err := intFromEnv("DB_MAX_OPEN_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := intFromEnv("DB_MAX_IDLE_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := durationFromEnv("DB_CONN_MAX_LIFETIME", 0)
	if err != nil {
		return Config{}, err
	}

	measurementsURL := strings.TrimSpace(os.Getenv("MEASUREMENTS_URL"))
	if measurementsURL == "" {
		measurementsURL, err = selfMeasurementsURL(httpAddr)
		if err != nil {
			return Config{}, err
		}
	} else if u, err := url.Parse(measurementsURL); err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, fmt.Errorf("invalid MEASUREMENTS_URL %q (expected absolute http(s) URL)", measurementsURL)
	}

	fetchTimeout, err := durationFromEnv("FETCH_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	if fetchTimeout <= 0 {
		return Config{}, fmt.Errorf("invalid FETCH_TIMEOUT %q: must be > 0", os.Getenv("FETCH_TIMEOUT"))
	}

	chartTitle := strings.TrimSpace(os.Getenv("CHART_TITLE"))
	if chartTitle == "" {
		chartTitle = "Soil and ambient temperature"
	}

	graphViewTTL, err := durationFromEnv("GRAPH_VIEW_TTL", 2*time.Minute)
	if err != nil {
		return Config{}, err
	}
	if graphViewTTL <= 0 {
		return Config{}, fmt.Errorf("invalid GRAPH_VIEW_TTL %q: must be > 0", os.Getenv("GRAPH_VIEW_TTL"))
	}
	graphMaxViews, err := intFromEnv("GRAPH_MAX_VIEWS", 1000)
	if err != nil {
		return Config{}, err
	}
	if graphMaxViews <= 0 {
		return Config{}, fmt.Errorf("invalid GRAPH_MAX_VIEWS %d (must be > 0)", graphMaxViews)
	}

	mqttEnabled, err := boolFromEnv("MQTT_ENABLED", true)
	if err != nil {
		return Config{}, err
	}
	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if mqttBroker == "" {
		mqttBroker = "localhost"
	}
	mqttPort, err := intFromEnv("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %d (must be 1-65535)", mqttPort)
	}
	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "hegemone-client"
	}
	mqttTopic := strings.TrimSpace(os.Getenv("MQTT_TOPIC"))
	if mqttTopic == "" {
		mqttTopic = "hegemone/+/sensors"
	}
	embedded, err := boolFromEnv("MQTT_EMBEDDED_BROKER", false)
	if err != nil {
		return Config{}, err
	}
	embeddedAddr := strings.TrimSpace(os.Getenv("MQTT_EMBEDDED_ADDR"))
	if embeddedAddr == "" {
		embeddedAddr = ":1883"
	}

	influxURL := strings.TrimSpace(os.Getenv("INFLUX_URL"))
	influxToken := strings.TrimSpace(os.Getenv("INFLUX_TOKEN"))
	influxOrg := strings.TrimSpace(os.Getenv("INFLUX_ORG"))
	influxBucket := strings.TrimSpace(os.Getenv("INFLUX_BUCKET"))
	if influxURL != "" && (influxOrg == "" || influxBucket == "") {
		return Config{}, fmt.Errorf("INFLUX_ORG and INFLUX_BUCKET are required when INFLUX_URL is set")
	}

	forwardURL := strings.TrimSpace(os.Getenv("FORWARD_URL"))
	forwardMaxRetries, err := intFromEnv("FORWARD_MAX_RETRIES", 3)
	if err != nil {
		return Config{}, err
	}
	if forwardMaxRetries < 0 {
		return Config{}, fmt.Errorf("invalid FORWARD_MAX_RETRIES %d (must be >= 0)", forwardMaxRetries)
	}

	forwardQueueSize, err := intFromEnv("FORWARD_QUEUE_SIZE", 256)
	if err != nil {
		return Config{}, err
	}
	if forwardQueueSize <= 0 {
		return Config{}, fmt.Errorf("invalid FORWARD_QUEUE_SIZE %d (must be > 0)", forwardQueueSize)
	}

	origins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return Config{
		AppEnv:                appEnv,
		LogLevel:              level,
		HTTPAddr:              httpAddr,
		SQLiteDriver:          driver,
		SQLiteDSN:             dsn,
		SQLitePath:            path,
		SQLiteMaxOpenConns:    maxOpenConns,
		SQLiteMaxIdleConns:    maxIdleConns,
		SQLiteConnMaxLifetime: connMaxLifetime,
		MeasurementsURL:       measurementsURL,
		FetchTimeout:          fetchTimeout,
		ChartTitle:            chartTitle,
		GraphViewTTL:          graphViewTTL,
		GraphMaxViews:         graphMaxViews,
		MQTTEnabled:           mqttEnabled,
		MQTTBroker:            mqttBroker,
		MQTTPort:              mqttPort,
		MQTTClientID:          mqttClientID,
		MQTTTopic:             mqttTopic,
		MQTTEmbeddedBroker:    embedded,
		MQTTEmbeddedAddr:      embeddedAddr,
		InfluxURL:             influxURL,
		InfluxToken:           influxToken,
		InfluxOrg:             influxOrg,
		InfluxBucket:          influxBucket,
		ForwardURL:            forwardURL,
		ForwardMaxRetries:     forwardMaxRetries,
		ForwardQueueSize:      forwardQueueSize,
		CORSAllowedOrigins:    origins,
	}, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

func intFromEnv(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func boolFromEnv(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// selfMeasurementsURL points the graph component at this process's own API.
func selfMeasurementsURL(httpAddr string) (string, error) {
	host, port, err := net.SplitHostPort(httpAddr)
	if err != nil {
		return "", fmt.Errorf("invalid HTTP_ADDR %q: %w", httpAddr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/api/v1/measurements", nil
}
