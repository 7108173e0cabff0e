// Connects a channel to a running hub, starts monitoring, and prints the
// live stream. Survives hub restarts via reconnect and sync.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/roastwire/roastwire"
)

func main() {
	var ch *roastwire.Channel
	ch, err := roastwire.NewChannel(roastwire.ChannelOptions{
		BaseURL:   "http://localhost:8080",
		MachineID: "north",
		OnState: func(s roastwire.ChannelState) {
			log.Printf("channel %s", s)
			if s == roastwire.StateConnected {
				ch.Send(&roastwire.Command{Action: "start_monitoring"})
			}
		},
		OnMessage: func(m roastwire.Message) {
			switch f := m.(type) {
			case *roastwire.Temperature:
				log.Printf("ET %.1f BT %.1f (RoR %.1f)", f.ET, f.BT, f.BTRoR)
			case *roastwire.Event:
				log.Printf("event %s at %d", f.EventType, f.TimestampMs)
			case *roastwire.Alarm:
				log.Printf("ALARM [%s] %s", f.Severity, f.Message)
			case *roastwire.StateChange:
				log.Printf("session %s (was %s)", f.State, f.PreviousState)
			case *roastwire.ErrorFrame:
				log.Printf("error %s: %s (recoverable=%v)", f.Code, f.Message, f.Recoverable)
				if !f.Recoverable {
					// Retrying can never succeed for this machine; stop
					// the reconnect loop.
					ch.Disconnect()
				}
			}
		},
	})
	if err != nil {
		log.Fatalf("build channel: %v", err)
	}

	ch.Connect()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	ch.Disconnect()
}
