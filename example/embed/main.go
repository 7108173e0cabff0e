// Embeds the hub in a host process with a programmatic config and an
// externally detected event fed into the live stream.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/roastwire/roastwire"
)

func main() {
	cfg := &roastwire.Config{
		Server: roastwire.ServerConfig{ListenAddr: ":8080"},
		Machines: []roastwire.MachineConfig{
			{ID: "north", Name: "North Roaster", Sim: roastwire.SimConfig{
				MachineID: "north",
				Interval:  time.Second,
			}},
		},
		Alarms: []roastwire.AlarmRule{
			{Channel: "bt", Op: "above", Value: 225, Severity: "critical", Message: "bean temp runaway"},
		},
	}

	rt, err := roastwire.NewRuntime(cfg)
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A stand-in for an external crack-detection algorithm.
	go func() {
		time.Sleep(30 * time.Second)
		if s := rt.Session("north"); s != nil {
			s.InjectDetectedEvent("FCs", 0)
		}
	}()

	if err := rt.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("hub exited: %v", err)
	}
}
