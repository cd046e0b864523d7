// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mattlee78/netstate/internal/adminbus"
	"github.com/mattlee78/netstate/internal/adminhttp"
	"github.com/mattlee78/netstate/internal/logrotate"
	"github.com/mattlee78/netstate/internal/netmetrics"
	"github.com/mattlee78/netstate/internal/netserver"
	"github.com/mattlee78/netstate/internal/runtimeEnv"
	"github.com/mattlee78/netstate/internal/statetree"
	"github.com/mattlee78/netstate/pkg/config"
	"github.com/mattlee78/netstate/pkg/log"
	"github.com/mattlee78/netstate/pkg/statelog"
)

func main() {
	var flagConfigFile string
	var flagGops bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default config options by those specified in `config.json`")
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

	tree := statetree.New(false)

	var bus *adminbus.Bus
	if config.Keys.Bus != nil {
		var err error
		bus, err = adminbus.Connect(adminbus.Config{
			Address:       config.Keys.Bus.Address,
			Username:      config.Keys.Bus.Username,
			Password:      config.Keys.Bus.Password,
			CredsFilePath: config.Keys.Bus.CredsFilePath,
		})
		if err != nil {
			log.Fatalf("adminbus connect failed: %s", err.Error())
		}
		defer bus.Close()
	}

	metrics := netmetrics.NewServerMetrics(prometheus.DefaultRegisterer)

	frameLog, err := statelog.NewRotator("./netserver-frames.csv", []statelog.Column{
		{Name: "tick", Type: statelog.UInt64},
		{Name: "delta_seconds", Type: statelog.Float},
		{Name: "elapsed_seconds", Type: statelog.Float},
	})
	if err != nil {
		log.Fatalf("statelog.NewRotator failed: %s", err.Error())
	}
	defer frameLog.Close()

	eventLog, err := statelog.OpenTimestamped("./netserver-events.log")
	if err != nil {
		log.Fatalf("statelog.OpenTimestamped failed: %s", err.Error())
	}
	defer eventLog.Close()

	rotation, err := logrotate.New()
	if err != nil {
		log.Fatalf("logrotate.New failed: %s", err.Error())
	}
	if err := rotation.RegisterRotation(time.Hour, frameLog.Rotate); err != nil {
		log.Fatalf("logrotate.RegisterRotation failed: %s", err.Error())
	}
	rotation.Start()
	defer rotation.Stop()

	var tick uint64
	srv, err := netserver.New(tree, netserver.Config{
		ListenAddr:     config.Keys.ListenAddr,
		Constants:      config.Keys.Prediction.PredictionConstants(),
		SessionSecret:  []byte(config.Keys.SessionSecret),
		TimeoutSeconds: config.Keys.TimeoutSeconds,
		Bus:            bus,
		Metrics:        metrics,
		Hooks: netserver.Hooks{
			OnClientConnected: func(c *netserver.ConnectedClient) {
				log.Infof("client %d (%s) connected from %s", c.ID, c.Username, c.Address)
				if err := eventLog.WriteLine("client %d (%s) connected from %s", c.ID, c.Username, c.Address); err != nil {
					log.Errorf("event log write failed: %s", err.Error())
				}
			},
			OnClientDisconnected: func(c *netserver.ConnectedClient) {
				log.Infof("client %d (%s) disconnected", c.ID, c.Username)
				if err := eventLog.WriteLine("client %d (%s) disconnected", c.ID, c.Username); err != nil {
					log.Errorf("event log write failed: %s", err.Error())
				}
			},
			Tick: func(deltaSeconds, absoluteSeconds float64) {
				tick++
				current := frameLog.Current()
				current.SetUInt64(0, tick)
				current.SetFloat(1, float32(deltaSeconds))
				current.SetFloat(2, float32(absoluteSeconds))
				if err := current.FlushLine(); err != nil {
					log.Errorf("frame log write failed: %s", err.Error())
				}
			},
		},
	})
	if err != nil {
		log.Fatalf("netserver.New failed: %s", err.Error())
	}
	defer srv.Close()

	if err := srv.SubscribeBus(); err != nil {
		log.Fatalf("adminbus subscribe failed: %s", err.Error())
	}

	if config.Keys.AdminHTTPAddr != "" {
		router := adminhttp.NewRouter(rosterAdapter{srv})
		go func() {
			if err := adminhttp.Serve(config.Keys.AdminHTTPAddr, router); err != nil {
				log.Errorf("adminhttp server exited: %s", err.Error())
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	srv.SpawnWorker(ctx, &wg, config.Keys.FramesPerSecond)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	runtimeEnv.SystemdNotifiy(true, "running")
	log.Infof("netserver listening on %s", srv.ListenAddr())
	<-sigs

	runtimeEnv.SystemdNotifiy(false, "shutting down")
	cancel()
	wg.Wait()
	log.Print("graceful shutdown completed")
}

// rosterAdapter bridges netserver.Server's peer snapshot to adminhttp's
// presentation type, keeping the two packages decoupled from each other.
type rosterAdapter struct{ srv *netserver.Server }

func (r rosterAdapter) Roster() []adminhttp.Roster {
	peers := r.srv.Peers()
	out := make([]adminhttp.Roster, len(peers))
	for i, p := range peers {
		out[i] = adminhttp.Roster{
			ClientID: p.ClientID,
			Username: p.Username,
			Stats: adminhttp.RosterStats{
				DatagramsReceived:                p.Stats.DatagramsReceived,
				DatagramsSent:                     p.Stats.DatagramsSent,
				ReliableMessagesSent:              p.Stats.ReliableMessagesSent,
				DuplicateReliableMessagesSkipped: p.Stats.DuplicateReliableMessagesSkipped,
				FracturedSnapshots:                p.Stats.FracturedSnapshots,
			},
		}
	}
	return out
}
