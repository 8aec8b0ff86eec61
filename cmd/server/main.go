package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"

	"luascript-server/internal/config"
	"luascript-server/internal/devices"
	"luascript-server/internal/geolocation"
	"luascript-server/internal/hub"
	"luascript-server/internal/logger"
	"luascript-server/internal/mainloop"
	"luascript-server/internal/rules"
	"luascript-server/internal/scheduler"
	"luascript-server/internal/script"
	"luascript-server/internal/settings"
	"luascript-server/internal/suncalc"
)

var (
	configPath = "./config"
	scriptsDir = "./scripts"
	dbPath     = "./data/settings.db"
	mqttBroker = "tcp://localhost:1883"
	mqttUser   = ""
	mqttPass   = ""
	listenAddr = ":8742"
	logLevel   = "info"
	timezone   = ""
	latitude   = ""
	longitude  = ""
	autoLocate = false
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "luascript-server",
		Short: "Home automation server with sandboxed Lua scripting",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, err := logger.ParseLevel(logLevel)
			if err != nil {
				level = logger.ERROR
				log.Printf("Invalid log level '%s', using ERROR", logLevel)
			}
			logger.Init(level, true)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", configPath, "Configuration directory path")
	rootCmd.PersistentFlags().StringVar(&scriptsDir, "scripts", scriptsDir, "Lua scripts directory")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", dbPath, "Settings database file path")
	rootCmd.PersistentFlags().StringVar(&mqttBroker, "mqtt-broker", mqttBroker, "MQTT broker URL (tcp://host:port)")
	rootCmd.PersistentFlags().StringVar(&mqttUser, "mqtt-user", mqttUser, "MQTT username")
	rootCmd.PersistentFlags().StringVar(&mqttPass, "mqtt-pass", mqttPass, "MQTT password")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", listenAddr, "Websocket listen address")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "Log level (debug, info, warn, error, critical)")
	rootCmd.PersistentFlags().StringVar(&timezone, "tz", timezone, "IANA timezone for triggers (stored in settings)")
	rootCmd.PersistentFlags().StringVar(&latitude, "latitude", latitude, "Latitude for sunrise/sunset (stored in settings)")
	rootCmd.PersistentFlags().StringVar(&longitude, "longitude", longitude, "Longitude for sunrise/sunset (stored in settings)")
	rootCmd.PersistentFlags().BoolVar(&autoLocate, "auto-locate", autoLocate, "Detect coordinates from public IP when none are stored")

	rootCmd.AddCommand(runCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Critical("Fatal error: %v", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the automation server",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runServer(); err != nil {
				logger.Critical("Server error: %v", err)
				os.Exit(1)
			}
		},
	}
}

func runServer() error {
	logger.Info("Starting Lua script server...")

	store, err := settings.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing settings store: %v", err)
		}
	}()
	applyFlagSettings(store)

	// Websocket hub carries script output and warning-level log messages
	wsHub := hub.New()
	defer wsHub.Close()
	logger.SetBroadcast(func(level, message string) {
		wsHub.Send("log", level, message)
	})

	httpServer := &http.Server{Addr: listenAddr, Handler: wsHub}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Websocket server error: %v", err)
		}
	}()
	defer httpServer.Close()
	logger.Info("Websocket hub listening on %s", listenAddr)

	loop := mainloop.New(100)
	loop.Start()
	defer loop.Stop()

	deviceConfig, err := config.LoadDevicesYAML(filepath.Join(configPath, "devices.yaml"))
	if err != nil {
		logger.Error("Failed to load devices config: %v", err)
		return err
	}
	logger.Info("Loaded %d device(s)", len(deviceConfig.Devices))

	deviceManager := devices.New(nil, deviceConfig.Devices)
	if client, err := connectMQTT(); err != nil {
		logger.Warn("MQTT unavailable, continuing without sensor updates: %v", err)
	} else {
		defer client.Disconnect(250)
		deviceManager.SetClient(client)
		logger.Info("MQTT connected")
	}
	if err := deviceManager.Subscribe(); err != nil {
		logger.Warn("Device subscription failed: %v", err)
	}

	sun := suncalc.New()

	manager := scheduler.NewManager(store)
	manager.Start()
	defer manager.Stop()

	factory := scheduler.NewEventFactory(manager, store, deviceManager, sun)
	deviceManager.AddSensorListener(factory.SensorValueUpdated)

	host := script.NewHost(loop, wsHub, map[string]interface{}{
		"deviceManager": deviceManager,
	})
	if err := host.LoadDir(scriptsDir); err != nil {
		logger.Warn("Could not load scripts from %s: %v", scriptsDir, err)
	}
	defer host.Shutdown()

	ruleConfig, err := config.LoadRulesYAML(filepath.Join(configPath, "rules.yaml"))
	if err != nil {
		logger.Error("Failed to load rules config: %v", err)
		return err
	}
	engine := rules.NewEngine(factory, host)
	engine.Load(ruleConfig)
	defer engine.Clear()
	logger.Info("Loaded %d rule(s)", engine.Rules())

	logger.Info("Server is running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	return nil
}

// applyFlagSettings persists coordinate and timezone flags so triggers
// read them through the settings store like every other value
func applyFlagSettings(store *settings.Store) {
	if timezone != "" {
		if err := store.Set("tz", timezone); err != nil {
			logger.Warn("Could not store timezone: %v", err)
		}
	}
	if latitude != "" && longitude != "" {
		if _, err := strconv.ParseFloat(latitude, 64); err != nil {
			logger.Warn("Ignoring invalid latitude %q", latitude)
		} else if _, err := strconv.ParseFloat(longitude, 64); err != nil {
			logger.Warn("Ignoring invalid longitude %q", longitude)
		} else {
			_ = store.Set("latitude", latitude)
			_ = store.Set("longitude", longitude)
		}
	}

	if autoLocate && store.Get("latitude", "") == "" {
		logger.Info("No coordinates stored, attempting to detect location from IP...")
		if loc, err := geolocation.LookupByIP(); err == nil {
			_ = store.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', 4, 64))
			_ = store.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', 4, 64))
		} else {
			logger.Warn("Failed to detect location from IP: %v", err)
		}
	}
}

func connectMQTT() (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(mqttBroker).
		SetClientID("luascript-server-" + time.Now().Format("20060102150405")).
		SetUsername(mqttUser).
		SetPassword(mqttPass).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errors.New("connect timeout")
	}
	if token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}
