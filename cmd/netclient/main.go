// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/google/gops/agent"

	"github.com/mattlee78/netstate/internal/netclient"
	"github.com/mattlee78/netstate/internal/runtimeEnv"
	"github.com/mattlee78/netstate/internal/statetree"
	"github.com/mattlee78/netstate/pkg/config"
	"github.com/mattlee78/netstate/pkg/log"
)

func main() {
	var flagConfigFile, flagServerAddr, flagUsername string
	var flagGops bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default config options by those specified in `config.json`")
	flag.StringVar(&flagServerAddr, "server", "", "netserver address to connect to (for example 'localhost:9876')")
	flag.StringVar(&flagUsername, "username", "", "Username to send in the handshake")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	if err := config.Load(flagConfigFile); err != nil {
		log.Fatal(err)
	}

	if flagServerAddr == "" {
		log.Fatal("-server is required")
	}
	if flagUsername == "" {
		log.Fatal("-username is required")
	}

	tree := statetree.New(true)

	cl, err := netclient.New(tree, flagServerAddr, config.Keys.Prediction.PredictionConstants(), netclient.Hooks{})
	if err != nil {
		log.Fatalf("netclient.New failed: %s", err.Error())
	}
	defer cl.Close()

	if err := cl.Connect(flagUsername, "", 0); err != nil {
		log.Fatalf("handshake failed: %s", err.Error())
	}
	log.Infof("connected to %s as %s", flagServerAddr, flagUsername)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	cl.SpawnWorker(ctx, &wg, config.Keys.FramesPerSecond)

	go readChatCommands(cl)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	runtimeEnv.SystemdNotifiy(true, "running")
	<-sigs

	runtimeEnv.SystemdNotifiy(false, "shutting down")
	cancel()
	wg.Wait()
	log.Print("graceful shutdown completed")
}

// readChatCommands relays stdin lines of the form "<toID> message" as
// chat submissions, a minimal interactive harness for manual testing.
func readChatCommands(cl *netclient.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		var toID uint16
		if _, err := fmt.Sscanf(parts[0], "%d", &toID); err != nil {
			continue
		}
		cl.SendChat(toID, parts[1])
	}
}
