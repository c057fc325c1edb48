package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"bluedrop/config"
	"bluedrop/discovery"
	"bluedrop/session"
	"bluedrop/storage"
	"bluedrop/transfer"
)

func main() {
	connectAddr := flag.String("connect", "", "peer address to connect to (host:port)")
	insecure := flag.Bool("insecure", false, "use the insecure transport variant for -connect")
	sendPath := flag.String("send", "", "file to send once the session is established")
	flag.Parse()

	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		log.Fatalf("startup failed while loading config: %v", err)
	}

	fmt.Printf("Device ID:       %s\n", cfg.DeviceID)
	fmt.Printf("Device Name:     %s\n", cfg.DeviceName)
	fmt.Printf("Secure Port:     %d\n", cfg.SecurePort)
	fmt.Printf("Insecure Port:   %d\n", cfg.InsecurePort)
	fmt.Printf("Config File:     %s\n", cfgPath)
	dataDir := filepath.Dir(cfgPath)
	fmt.Printf("Data Directory:  %s\n", dataDir)

	store, dbPath, err := storage.Open(dataDir)
	if err != nil {
		log.Fatalf("startup failed while opening database: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("database close error: %v", err)
		}
	}()
	fmt.Printf("Database File:   %s\n", dbPath)

	var scanner *discovery.PeerScanner
	discoveryService, err := discovery.Start(discovery.Config{
		SelfDeviceID: cfg.DeviceID,
		DeviceName:   cfg.DeviceName,
		SecurePort:   cfg.SecurePort,
		InsecurePort: cfg.InsecurePort,
	})
	if err != nil {
		log.Printf("discovery startup failed: %v", err)
	} else {
		defer discoveryService.Stop()
		scanner = discoveryService.Scanner
		fmt.Println("Discovery:       running")
		go logDiscoveryEvents(scanner.Events(), store)
	}

	transport := session.NewTCPTransport(map[session.Variant]string{
		session.VariantSecure:   net.JoinHostPort("", strconv.Itoa(cfg.SecurePort)),
		session.VariantInsecure: net.JoinHostPort("", strconv.Itoa(cfg.InsecurePort)),
	}, session.DefaultDialTimeout)

	manager, err := session.NewManager(session.Config{
		Transport: transport,
		SuspendDiscovery: func() {
			if scanner != nil {
				scanner.Suspend()
			}
		},
	})
	if err != nil {
		log.Fatalf("startup failed while creating session manager: %v", err)
	}
	defer manager.Close()

	files := transfer.NewService(manager, store, cfg.FilesDir)

	manager.Start()
	fmt.Println("Sessions:        listening")

	done := make(chan struct{})
	go runEventLoop(manager, files, scanner, store, *sendPath, done)

	if *connectAddr != "" {
		variant := session.VariantSecure
		if *insecure {
			variant = session.VariantInsecure
		}
		manager.Connect(*connectAddr, variant)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Status:          running (press Ctrl+C to stop)")
	<-ctx.Done()
	fmt.Println("Status:          shutting down")

	manager.Close()
	<-done
}

// runEventLoop consumes session events until the manager closes its stream.
// The transfer service sees every event; everything else here is logging
// plus resuming discovery when a session ends.
func runEventLoop(manager *session.Manager, files *transfer.Service, scanner *discovery.PeerScanner, store *storage.Store, sendPath string, done chan<- struct{}) {
	defer close(done)

	for event := range manager.Events() {
		received, err := files.HandleEvent(event)
		if err != nil {
			log.Printf("transfer: %v", err)
		}
		if received != nil {
			log.Printf("received %q (%d bytes) from %s -> %s",
				received.Name, received.Size, received.Peer, received.Path)
		}

		switch event.Kind {
		case session.EventStateChanged:
			log.Printf("session: state %s", event.State)
			if scanner != nil && event.State != session.StateConnected {
				scanner.Resume()
			}
		case session.EventDeviceIdentified:
			log.Printf("session: connected to %s", event.Name)
			if err := store.UpsertPeer(event.Name, event.Name, time.Now()); err != nil {
				log.Printf("storage: %v", err)
			}
		case session.EventKeyReceived:
			log.Printf("session: shared key established (%d bytes)", len(event.Data))
			if sendPath != "" {
				if err := files.SendFile(sendPath); err != nil {
					log.Printf("send %q: %v", sendPath, err)
				} else {
					log.Printf("sent %q", sendPath)
				}
			}
		case session.EventToast:
			log.Printf("session: %s", event.Name)
		case session.EventCryptoError:
			log.Printf("session: key agreement failed: %s", event.Name)
		}
	}
}

func logDiscoveryEvents(events <-chan discovery.Event, store *storage.Store) {
	for event := range events {
		switch event.Type {
		case discovery.EventPeerUpserted:
			log.Printf("discovery: peer available id=%s name=%q addr=%v port=%d",
				event.Peer.DeviceID, event.Peer.DeviceName, event.Peer.Addresses, event.Peer.SecurePort)
			if addr := event.Peer.PrimaryAddress(); addr != "" {
				endpoint := net.JoinHostPort(addr, strconv.Itoa(event.Peer.SecurePort))
				if err := store.UpsertPeer(endpoint, event.Peer.DeviceName, event.Peer.LastSeen); err != nil {
					log.Printf("storage: %v", err)
				}
			}
		case discovery.EventPeerRemoved:
			log.Printf("discovery: peer removed id=%s", event.Peer.DeviceID)
		default:
			log.Printf("discovery: event=%s id=%s", event.Type, event.Peer.DeviceID)
		}
	}
}
