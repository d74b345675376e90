// Command plantsctl talks to a running gardener over gRPC.
//
//	plantsctl [--addr host:port] status
//	plantsctl [--addr host:port] water <pump> [--duration 30s] [--force]
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/LeonardoBeccarini/plants/internal/services/api"
)

func main() {
	addr := pflag.StringP("addr", "a", "127.0.0.1:9002", "gardener gRPC address")
	duration := pflag.StringP("duration", "d", "", "watering duration (pump default if empty)")
	force := pflag.BoolP("force", "f", false, "ignore the activation thresholds")
	timeout := pflag.Duration("timeout", 5*time.Second, "request timeout")
	pflag.Parse()

	if err := run(*addr, *duration, *force, *timeout, pflag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "plantsctl: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, duration string, force bool, timeout time.Duration, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: plantsctl status | water <pump>")
	}
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer cc.Close()
	client := api.NewClient(cc)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	switch args[0] {
	case "status":
		st, err := client.Status(ctx)
		if err != nil {
			return err
		}
		b, err := protojson.MarshalOptions{Multiline: true}.Marshal(st)
		if err != nil {
			return err
		}
		fmt.Println(string(b))
	case "water":
		if len(args) != 2 {
			return fmt.Errorf("usage: plantsctl water <pump>")
		}
		ok, id, err := client.Water(ctx, args[1], duration, force)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: refused (quota)", args[1])
		}
		fmt.Printf("queued %s\n", id)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}
