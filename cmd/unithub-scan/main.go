package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/unithub/unithub-ble/internal/log"
	"github.com/unithub/unithub-ble/pkg/connector"
	"github.com/unithub/unithub-ble/pkg/connector/ble"
	"github.com/unithub/unithub-ble/pkg/protocol"
)

var (
	btAdapter = flag.String("bt-adapter", "", "Optional ID of Bluetooth adapter to use (Linux only)")
	testScan  = flag.Bool("scan", false, "Also scan for Unit-Hub advertisements until interrupted")
)

func main() {
	flag.Parse()
	log.SetLevel(log.LevelDebug)

	if *btAdapter != "" {
		log.Info("Trying to use BLE adapter: %s", *btAdapter)
	} else {
		log.Info("Using first available BLE device")
	}
	adapter := ble.NewAdapter(*btAdapter)
	defer adapter.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !*testScan {
		if err := adapter.Open(); err != nil {
			reportAdapterError(err)
			return
		}
		log.Info("BLE adapter initialized")
		return
	}

	doneChan := make(chan struct{})
	go func() {
		defer close(doneChan)
		err := adapter.Scan(ctx, []string{string(protocol.RootService)}, func(a connector.Advertisement) {
			rssi := "?"
			if a.RSSI != nil {
				rssi = fmt.Sprintf("%d", *a.RSSI)
			}
			fmt.Printf("%s\t%s\t%s dBm\tconnectable=%v\t%v\n", a.DeviceID, a.LocalName, rssi, a.Connectable, a.Services)
		})
		if err != nil && ctx.Err() == nil {
			reportAdapterError(err)
		}
	}()
	log.Info("Scanning for Unit-Hub devices until interrupted")

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	select {
	case <-signalChan:
		log.Info("Stopping scan")
		cancel()
		<-doneChan
	case <-doneChan:
	}
}

func reportAdapterError(err error) {
	if ble.IsAdapterError(err) {
		log.Error("%s", ble.AdapterErrorHelpMessage(err))
	} else {
		log.Error("Scan failed: %v", err)
	}
}
