package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/phroun/faderbank/client"
	"github.com/phroun/faderbank/internal/config"
	"github.com/phroun/faderbank/internal/db"
	"github.com/phroun/faderbank/internal/midi"
	"github.com/phroun/faderbank/internal/protocol"
	"github.com/phroun/faderbank/internal/vu"
)

func main() {
	configPath := flag.String("config", "faderbank.toml", "path to the console configuration file")
	listMIDI := flag.Bool("list-midi", false, "list MIDI devices and exit")
	enroll := flag.String("enroll", "", "enroll a server URL into the console database and exit")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *listMIDI {
		listDevices()
		return
	}

	cfg, err := config.LoadConsole(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(*debug)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	clientDB, err := db.NewClientDB(cfg.DBPath)
	if err != nil {
		logger.Fatal("open console database", zap.String("path", cfg.DBPath), zap.Error(err))
	}
	defer clientDB.Close()

	if *enroll != "" {
		enrolled, err := clientDB.EnrollServer(*enroll, *enroll)
		if err != nil {
			logger.Fatal("enroll server", zap.Error(err))
		}
		fmt.Printf("Enrolled %s (%s)\n", enrolled.BaseURL, enrolled.ID)
		return
	}

	// Device preferences saved by a previous run win over an unset
	// config value.
	outputDevice := cfg.MIDI.OutputDevice
	if outputDevice == "" {
		outputDevice, _ = clientDB.GetPreference(db.PrefMIDIOutputDevice)
	}
	inputDevice := cfg.MIDI.InputDevice
	if inputDevice == "" {
		inputDevice, _ = clientDB.GetPreference(db.PrefMIDIInputDevice)
	}

	identity := client.Identity{
		UserID:      cfg.UserID,
		LoginName:   cfg.LoginName,
		DisplayName: cfg.DisplayName,
	}
	remote := client.NewHTTPRemote(cfg.ServerURL, identity)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	profileID, err := resolveProfile(ctx, remote, cfg.Profile)
	if err != nil {
		logger.Fatal("resolve profile", zap.String("profile", cfg.Profile), zap.Error(err))
	}
	if err := clientDB.SetPreference(db.PrefLastProfile, profileID); err != nil {
		logger.Warn("save last profile", zap.Error(err))
	}

	meters := vu.NewEngine(cfg.VU.DecayPerSecond, cfg.VU.PeakHold, cfg.VU.PeakDecayPerSecond)

	var mapper *midi.Mapper
	if cfg.MIDI.OutputEnabled {
		out, err := midi.OpenOutput(outputDevice)
		if err != nil {
			logger.Warn("midi output unavailable, continuing without hardware",
				zap.String("device", outputDevice), zap.Error(err))
		} else {
			mapper = midi.NewMapper(out, cfg.MIDI.Channel, cfg.MIDI.MomentaryDelay, logger)
			if outputDevice != "" {
				if err := clientDB.SetPreference(db.PrefMIDIOutputDevice, outputDevice); err != nil {
					logger.Warn("save midi output preference", zap.Error(err))
				}
			}
		}
	}

	session := client.NewSession(client.Options{
		Remote:      remote,
		ProfileID:   profileID,
		UserID:      cfg.UserID,
		DisplayName: cfg.DisplayName,
		Logger:      logger,
		Mapper:      mapper,
		Meters:      meters,
		VUBroadcast: cfg.VU.BroadcastInterval,
		OnError: func(errMsg protocol.ErrorMessage) {
			if errMsg.Code == protocol.ErrCodeConflict {
				logger.Warn("responsibility held",
					zap.String("holder", errMsg.HolderName))
				return
			}
			logger.Warn("server rejected request",
				zap.String("code", errMsg.Code), zap.String("message", errMsg.Message))
		},
	})

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		session.Run(ctx)
	}()

	feed := client.NewWSFeed(cfg.ServerURL, identity, profileID, session, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		feed.Run(ctx)
	}()

	poller := client.NewPoller(remote, profileID, cfg.PollInterval, session, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	if inputDevice != "" {
		in, err := midi.OpenInput(inputDevice)
		if err != nil {
			logger.Warn("midi input unavailable",
				zap.String("device", inputDevice), zap.Error(err))
		} else {
			capture := client.NewVUCapture(in, session, meters, cfg.MIDI.Channel, logger)
			wg.Add(1)
			go func() {
				defer wg.Done()
				capture.Run(ctx)
			}()
			if err := clientDB.SetPreference(db.PrefMIDIInputDevice, inputDevice); err != nil {
				logger.Warn("save midi input preference", zap.Error(err))
			}
		}
	}

	logger.Info("faderbank console attached",
		zap.String("server", cfg.ServerURL), zap.String("profile", profileID))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
	wg.Wait()
}

// resolveProfile maps a configured slug or ID to the profile ID.
func resolveProfile(ctx context.Context, remote *client.HTTPRemote, profile string) (string, error) {
	profiles, err := remote.Profiles(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range profiles {
		if p.ID == profile || p.Slug == profile {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("profile %q not found on server", profile)
}

func listDevices() {
	outputs, err := midi.ListOutputs()
	if err != nil {
		log.Fatalf("Failed to list MIDI outputs: %v", err)
	}
	inputs, err := midi.ListInputs()
	if err != nil {
		log.Fatalf("Failed to list MIDI inputs: %v", err)
	}
	fmt.Println("MIDI outputs:")
	if len(outputs) == 0 {
		fmt.Println("  (none)")
	}
	for _, d := range outputs {
		fmt.Printf("  %s\n", d.Name)
	}
	fmt.Println("MIDI inputs:")
	if len(inputs) == 0 {
		fmt.Println("  (none)")
	}
	for _, d := range inputs {
		if d.Manufacturer != "" {
			fmt.Printf("  %s (%s)\n", d.Name, d.Manufacturer)
		} else {
			fmt.Printf("  %s\n", d.Name)
		}
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
